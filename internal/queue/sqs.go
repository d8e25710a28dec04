package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// SQSOptions configures the SQS-backed queue.
type SQSOptions struct {
	Region          string `yaml:"region" mapstructure:"region"`
	QueueURL        string `yaml:"queue_url" mapstructure:"queue_url"`
	EndpointURL     string `yaml:"endpoint_url" mapstructure:"endpoint_url"` // LocalStack and friends
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`

	// VisibilityTimeout is how long a received message stays hidden before
	// redelivery. Default: 5m, sized to the slowest pipeline stage.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" mapstructure:"visibility_timeout"`
}

// SQSQueue implements Queue on an SQS queue.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
	opts     SQSOptions
}

// NewSQS builds an SQS queue client.
func NewSQS(ctx context.Context, opts SQSOptions) (*SQSQueue, error) {
	if opts.QueueURL == "" {
		return nil, eris.New("sqs: queue url is required")
	}
	if opts.VisibilityTimeout == 0 {
		opts.VisibilityTimeout = 5 * time.Minute
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "sqs: load aws config")
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
	})

	return &SQSQueue{client: client, queueURL: opts.QueueURL, opts: opts}, nil
}

func (q *SQSQueue) Enqueue(ctx context.Context, msg model.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "sqs: marshal message")
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return eris.Wrapf(err, "sqs: send message for job %s", msg.JobID)
	}

	zap.L().Debug("sqs: enqueued job",
		zap.String("job_id", msg.JobID),
		zap.String("stage", string(msg.Stage)),
	)
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error) {
	if max <= 0 {
		max = 1
	}
	waitSec := int32(wait / time.Second)
	if waitSec > 20 {
		waitSec = 20 // SQS long-poll ceiling
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     waitSec,
		VisibilityTimeout:   int32(q.opts.VisibilityTimeout / time.Second),
	})
	if err != nil {
		return nil, eris.Wrap(err, "sqs: receive")
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		var msg model.JobMessage
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
			// A malformed body would redeliver forever; drop it.
			zap.L().Warn("sqs: dropping unparsable message", zap.Error(err))
			if m.ReceiptHandle != nil {
				_ = q.Delete(ctx, *m.ReceiptHandle)
			}
			continue
		}
		deliveries = append(deliveries, Delivery{
			Receipt: aws.ToString(m.ReceiptHandle),
			Message: msg,
		})
	}
	return deliveries, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	return eris.Wrap(err, "sqs: delete message")
}
