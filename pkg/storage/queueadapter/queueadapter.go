// Package queueadapter implements dispatcher.Queue over Azure Storage
// Queues, translating between the dispatcher's minimal message type and
// the azqueue SDK's request/response shapes.
package queueadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/aks-migrator/engine/pkg/dispatcher"
)

// Adapter wraps an azqueue.QueueClient as a dispatcher.Queue.
type Adapter struct {
	client *azqueue.QueueClient
}

// New builds an Adapter for the queue at queueURL (e.g.
// "https://<account>.queue.core.windows.net/<queue-name>"), authenticating
// with cred.
func New(queueURL string, cred azcore.TokenCredential) (*Adapter, error) {
	client, err := azqueue.NewQueueClient(queueURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating queue client for %s: %w", queueURL, err)
	}
	return &Adapter{client: client}, nil
}

// Dequeue retrieves a single message, making it invisible for visibilityTimeout.
func (a *Adapter) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*dispatcher.Message, error) {
	seconds := int32(visibilityTimeout.Seconds())
	resp, err := a.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		VisibilityTimeout: &seconds,
		NumberOfMessages:  to.Ptr(int32(1)),
	})
	if err != nil {
		return nil, fmt.Errorf("dequeuing message: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, dispatcher.ErrNoJobsAvailable
	}
	return toDispatcherMessage(resp.Messages[0]), nil
}

// UpdateVisibility extends or renews a message's invisibility window.
func (a *Adapter) UpdateVisibility(ctx context.Context, msg *dispatcher.Message, visibilityTimeout time.Duration) (*dispatcher.Message, error) {
	seconds := int32(visibilityTimeout.Seconds())
	resp, err := a.client.UpdateMessage(ctx, msg.ID, msg.PopReceipt, msg.Content, &azqueue.UpdateMessageOptions{
		VisibilityTimeout: &seconds,
	})
	if err != nil {
		return nil, fmt.Errorf("updating message visibility for %s: %w", msg.ID, err)
	}
	updated := *msg
	if resp.PopReceipt != nil {
		updated.PopReceipt = *resp.PopReceipt
	}
	if resp.TimeNextVisible != nil {
		updated.NextVisibleOn = *resp.TimeNextVisible
	}
	return &updated, nil
}

// Delete removes a message after successful processing.
func (a *Adapter) Delete(ctx context.Context, msg *dispatcher.Message) error {
	_, err := a.client.DeleteMessage(ctx, msg.ID, msg.PopReceipt, nil)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", msg.ID, err)
	}
	return nil
}

// Enqueue adds a new message (used for dead-letter routing).
func (a *Adapter) Enqueue(ctx context.Context, content string) error {
	_, err := a.client.EnqueueMessage(ctx, content, nil)
	if err != nil {
		return fmt.Errorf("enqueuing message: %w", err)
	}
	return nil
}

// ApproximateMessageCount reports the queue's approximate depth.
func (a *Adapter) ApproximateMessageCount(ctx context.Context) (int64, error) {
	resp, err := a.client.GetProperties(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("querying queue properties: %w", err)
	}
	if resp.ApproximateMessagesCount == nil {
		return 0, nil
	}
	return int64(*resp.ApproximateMessagesCount), nil
}

func toDispatcherMessage(m *azqueue.DequeuedMessage) *dispatcher.Message {
	msg := &dispatcher.Message{}
	if m.MessageID != nil {
		msg.ID = *m.MessageID
	}
	if m.PopReceipt != nil {
		msg.PopReceipt = *m.PopReceipt
	}
	if m.DequeueCount != nil {
		msg.DequeueCount = *m.DequeueCount
	}
	if m.MessageText != nil {
		msg.Content = *m.MessageText
	}
	if m.InsertionTime != nil {
		msg.InsertedOn = *m.InsertionTime
	}
	if m.TimeNextVisible != nil {
		msg.NextVisibleOn = *m.TimeNextVisible
	}
	return msg
}
