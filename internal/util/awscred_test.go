// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package util

import (
	"context"
	"os"
	"testing"
)

func TestResolveDBPasswordPrefersEnvBypass(t *testing.T) {
	os.Setenv(DBPasswordEnv, "from-env")
	defer os.Unsetenv(DBPasswordEnv)

	pwd, err := ResolveDBPassword(context.Background(), "unused-secret", "unused-region")
	if err != nil {
		t.Fatalf("ResolveDBPassword() error: %v", err)
	}
	if pwd != "from-env" {
		t.Errorf("ResolveDBPassword() = %q, want %q", pwd, "from-env")
	}
}

func TestResolveDBPasswordBypassAllowsEmptyString(t *testing.T) {
	os.Setenv(DBPasswordEnv, "")
	defer os.Unsetenv(DBPasswordEnv)

	pwd, err := ResolveDBPassword(context.Background(), "unused-secret", "unused-region")
	if err != nil {
		t.Fatalf("ResolveDBPassword() error: %v", err)
	}
	if pwd != "" {
		t.Errorf("ResolveDBPassword() = %q, want empty string", pwd)
	}
}

func TestGetPasswordFromSecretsManagerRequiresSecretAndRegion(t *testing.T) {
	if _, err := GetPasswordFromSecretsManager(context.Background(), "", "us-east-1"); err == nil {
		t.Error("expected an error for an empty secret name")
	}
	if _, err := GetPasswordFromSecretsManager(context.Background(), "my-secret", ""); err == nil {
		t.Error("expected an error for an empty region")
	}
}

func TestLoadAWSCredentialsSetsEnvFromExplicitFlags(t *testing.T) {
	defer func() {
		os.Unsetenv("AWS_ACCESS_KEY_ID")
		os.Unsetenv("AWS_SECRET_ACCESS_KEY")
		os.Unsetenv("AWS_SESSION_TOKEN")
	}()

	LoadAWSCredentials("AKIA_TEST", "secret_test", "token_test")

	if os.Getenv("AWS_ACCESS_KEY_ID") != "AKIA_TEST" {
		t.Errorf("AWS_ACCESS_KEY_ID not set from explicit flag")
	}
	if os.Getenv("AWS_SESSION_TOKEN") != "token_test" {
		t.Errorf("AWS_SESSION_TOKEN not set from explicit flag")
	}
}
