// Package preflight asks IAM whether a role may perform the calls the
// pipeline makes, so a misconfigured deployment fails before any row is read.
package preflight

import (
	"context"
	"fmt"
	"strings"

	awsarn "github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/gurre/ddb-inventory/aws"
)

// Check is one action on one resource.
type Check struct {
	Action   string
	Resource string
}

// Result is the simulated decision for a Check.
type Result struct {
	Check
	Decision string
}

// Allowed reports whether the simulation allowed the call.
func (r Result) Allowed() bool {
	return r.Decision == string(types.PolicyEvaluationDecisionTypeAllowed)
}

// Resources names what the pipeline touches. Empty fields are not checked.
type Resources struct {
	UploadObjectARN string // arn:aws:s3:::bucket/key, wildcards allowed
	TableARN        string
	TopicARN        string
	CheckpointARN   string // Object ARN pattern under the checkpoint prefix
	ReportARN       string // Object ARN pattern under the report prefix
}

// Checks lists the calls every handler and the CLI make against res.
func Checks(res Resources) []Check {
	var checks []Check
	if res.UploadObjectARN != "" {
		checks = append(checks, Check{"s3:GetObject", res.UploadObjectARN})
	}
	if res.TableARN != "" {
		checks = append(checks,
			Check{"dynamodb:PutItem", res.TableARN},
			Check{"dynamodb:Scan", res.TableARN},
		)
	}
	if res.TopicARN != "" {
		checks = append(checks, Check{"sns:Publish", res.TopicARN})
	}
	if res.CheckpointARN != "" {
		checks = append(checks,
			Check{"s3:GetObject", res.CheckpointARN},
			Check{"s3:PutObject", res.CheckpointARN},
		)
	}
	if res.ReportARN != "" {
		checks = append(checks, Check{"s3:PutObject", res.ReportARN})
	}
	return checks
}

// Checker runs checks with IAM SimulatePrincipalPolicy.
type Checker struct {
	client aws.IAMClient
}

// NewChecker creates a Checker.
func NewChecker(client aws.IAMClient) *Checker {
	return &Checker{client: client}
}

// Run simulates every check for principalARN. It returns all results and
// an error naming the denied calls if any were denied.
func (c *Checker) Run(ctx context.Context, principalARN string, checks []Check) ([]Result, error) {
	results := make([]Result, 0, len(checks))
	var denied []string

	for _, chk := range checks {
		out, err := c.client.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
			PolicySourceArn: &principalARN,
			ActionNames:     []string{chk.Action},
			ResourceArns:    []string{chk.Resource},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to simulate %s on %s: %w", chk.Action, chk.Resource, err)
		}

		decision := string(types.PolicyEvaluationDecisionTypeImplicitDeny)
		for _, ev := range out.EvaluationResults {
			if ev.EvalActionName != nil && *ev.EvalActionName == chk.Action {
				decision = string(ev.EvalDecision)
				break
			}
		}

		r := Result{Check: chk, Decision: decision}
		results = append(results, r)
		if !r.Allowed() {
			denied = append(denied, fmt.Sprintf("%s on %s (%s)", chk.Action, chk.Resource, decision))
		}
	}

	if len(denied) > 0 {
		return results, fmt.Errorf("%s is not allowed: %s", principalARN, strings.Join(denied, "; "))
	}
	return results, nil
}

// TableARN builds the ARN of a DynamoDB table in the account and partition
// of principalARN.
func TableARN(principalARN, region, table string) (string, error) {
	p, err := awsarn.Parse(principalARN)
	if err != nil {
		return "", fmt.Errorf("invalid principal ARN: %w", err)
	}
	if region == "" {
		return "", fmt.Errorf("region is required to build the table ARN")
	}
	return awsarn.ARN{
		Partition: p.Partition,
		Service:   "dynamodb",
		Region:    region,
		AccountID: p.AccountID,
		Resource:  "table/" + table,
	}.String(), nil
}

// ObjectARN builds the ARN of an S3 object or object pattern.
func ObjectARN(partition, bucket, key string) string {
	if partition == "" {
		partition = "aws"
	}
	return awsarn.ARN{
		Partition: partition,
		Service:   "s3",
		Resource:  bucket + "/" + key,
	}.String()
}
