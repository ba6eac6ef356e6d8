package credcheck

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ProviderAWSECR is the seeded registry provider name for Amazon ECR.
const ProviderAWSECR = "AWS ECR"

const defaultAWSRegion = "us-east-1"

// AWSVerifier checks static AWS access keys with STS GetCallerIdentity, which
// needs no IAM permissions and so only fails for invalid keys.
type AWSVerifier struct {
	endpoint string
}

// NewAWSVerifier creates a verifier. endpoint overrides the STS endpoint and
// is empty outside tests.
func NewAWSVerifier(endpoint string) *AWSVerifier {
	return &AWSVerifier{endpoint: endpoint}
}

// Verify implements Verifier.
func (v *AWSVerifier) Verify(ctx context.Context, cred Credential) (*Result, error) {
	if cred.AccessKey == "" || cred.SecretKey == "" {
		return &Result{Provider: cred.Provider, Valid: false, Message: "access key and secret key are required"}, nil
	}

	region := cred.Region
	if region == "" {
		region = defaultAWSRegion
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cred.AccessKey, cred.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		if v.endpoint != "" {
			o.BaseEndpoint = aws.String(v.endpoint)
		}
	})

	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{Provider: cred.Provider, Valid: false, Message: err.Error()}, nil
	}

	return &Result{
		Provider: cred.Provider,
		Valid:    true,
		Account:  aws.ToString(out.Account),
		ARN:      aws.ToString(out.Arn),
		UserID:   aws.ToString(out.UserId),
	}, nil
}
