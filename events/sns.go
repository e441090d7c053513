package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopswift/storefront/pkg/aws"
	"go.uber.org/zap"
)

type SNSPublisher struct {
	client   aws.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

func NewSNSPublisher(client aws.SNSPublisher, topicArn string, logger *zap.Logger) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn, logger: logger}
}

func (p *SNSPublisher) PublishOrderPlaced(ctx context.Context, evt OrderPlaced) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.topicArn, data); err != nil {
		p.logger.Error("Failed to publish order event to SNS", zap.String("order_id", evt.OrderID), zap.Error(err))
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func (p *SNSPublisher) Close() error { return nil }
