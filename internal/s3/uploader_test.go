// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap/zaptest"
)

func TestMultipartUploadStreamCompleteRequiresParts(t *testing.T) {
	stream := &MultipartUploadStream{
		key:        "test-key",
		partNumber: 1,
		log:        zaptest.NewLogger(t),
	}

	// uploader is nil: Complete must fail on the zero-parts check before it
	// ever dereferences uploader to reach the S3 client.
	if err := stream.Complete(context.Background()); err == nil {
		t.Fatal("expected an error completing a multipart upload with no parts")
	}
}

func TestMultipartUploadStreamTracksPartNumbers(t *testing.T) {
	one := int32(1)
	stream := &MultipartUploadStream{
		key:        "test-key",
		partNumber: 2,
		parts:      []types.CompletedPart{{PartNumber: &one}},
		log:        zaptest.NewLogger(t),
	}

	if len(stream.parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(stream.parts))
	}
	if *stream.parts[0].PartNumber != 1 {
		t.Errorf("expected part number 1, got %d", *stream.parts[0].PartNumber)
	}
	if stream.partNumber != 2 {
		t.Errorf("expected next part number 2, got %d", stream.partNumber)
	}
}
