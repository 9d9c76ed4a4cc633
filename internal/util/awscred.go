// Copyright (c) 2024 Netskope, Inc. All rights reserved.

// Package util resolves AWS credentials and destination-database passwords
// the way cmd/migrate needs to connect to S3 and the Postgres/MySQL
// endpoints a RunConfig names, kept and generalized from the teacher's
// Aurora-MySQL-specific credential resolution.
package util

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Vault-injected AWS IAM credential file paths, read when neither explicit
// flags nor environment variables supply credentials.
const (
	DefaultAWSKeyFile    = "/vault/secrets/awskey"
	DefaultAWSSecretFile = "/vault/secrets/awssecret"

	// DBPasswordEnv allows bypassing Secrets Manager lookups entirely (e.g.
	// local runs, smoke tests). When set (even to an empty string),
	// ResolveDBPassword returns the value directly.
	DBPasswordEnv = "MIGRATOR_DB_PASSWORD" //nolint:gosec // env var name, not a credential
)

// LoadAWSCredentials loads AWS IAM credentials with the following priority:
//  1. CLI flags (accessKeyID, secretAccessKey, sessionToken) - highest priority
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN)
//  3. Vault files (DefaultAWSKeyFile, DefaultAWSSecretFile), copied into
//     those environment variables when present
//  4. AWS SDK default chain (AWS CLI credentials, SSO cache, IAM roles, etc.)
//
// Flags are exported as environment variables. Without flags or
// environment variables, the vault files are read before the SDK's default
// chain is consulted; whether that chain already holds credentials is not
// checked.
func LoadAWSCredentials(accessKeyID, secretAccessKey, sessionToken string) {
	if accessKeyID != "" && secretAccessKey != "" {
		_ = os.Setenv("AWS_ACCESS_KEY_ID", accessKeyID)
		_ = os.Setenv("AWS_SECRET_ACCESS_KEY", secretAccessKey)
		if sessionToken != "" {
			_ = os.Setenv("AWS_SESSION_TOKEN", sessionToken)
		}
		return
	}

	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" {
		return
	}

	// No CLI flags, no env vars: copy the vault files into the environment,
	// where present. The SDK's other sources (CLI profiles, SSO cache, IAM
	// roles) are used only when these leave the variables unset.

	if os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		if content, err := os.ReadFile(DefaultAWSKeyFile); err == nil {
			_ = os.Setenv("AWS_ACCESS_KEY_ID", strings.TrimSpace(string(content)))
		}
	}
	if os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		if content, err := os.ReadFile(DefaultAWSSecretFile); err == nil {
			_ = os.Setenv("AWS_SECRET_ACCESS_KEY", strings.TrimSpace(string(content)))
		}
	}
}

// GetPasswordFromSecretsManager retrieves a database password from AWS
// Secrets Manager. The secret JSON is expected to contain a "password" field.
func GetPasswordFromSecretsManager(ctx context.Context, secretName, region string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("secret name is required for Secrets Manager")
	}
	if region == "" {
		return "", fmt.Errorf("region is required for Secrets Manager")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("create AWS config: %w", err)
	}

	svc := secretsmanager.NewFromConfig(awsCfg)
	out, err := svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretName),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret string empty for %s", secretName)
	}

	var payload struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return "", fmt.Errorf("parse secret json: %w", err)
	}
	if payload.Password == "" {
		return "", fmt.Errorf("password field empty in secret %s", secretName)
	}
	return payload.Password, nil
}

// ResolveDBPassword returns a connection's password. If DBPasswordEnv is
// set (even to an empty string), that value is returned; otherwise the
// password is fetched from AWS Secrets Manager using secretName/region.
func ResolveDBPassword(ctx context.Context, secretName, region string) (string, error) {
	if pwd, ok := os.LookupEnv(DBPasswordEnv); ok {
		return pwd, nil
	}
	return GetPasswordFromSecretsManager(ctx, secretName, region)
}
