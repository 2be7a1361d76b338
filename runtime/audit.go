package runtime

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
)

// AuditSender mirrors an audit event onto an external notification
// channel, in addition to the always-on audit log stream every audit
// effect is also appended to. Optional: a nil AuditSender simply skips
// the mirror.
type AuditSender interface {
	Send(ctx context.Context, tenant ids.TenantId, eventType, detail string) error
}

// AzureServiceBusAuditSender mirrors audit effects onto a Service Bus
// queue or topic, for external compliance subscribers (the
// NotifySubscriberEffect collaborator boundary named by the out-of-scope
// Subscribe operation).
type AzureServiceBusAuditSender struct {
	sender *azservicebus.Sender
}

// NewAzureServiceBusAuditSender opens a sender against queueOrTopic.
func NewAzureServiceBusAuditSender(client *azservicebus.Client, queueOrTopic string) (*AzureServiceBusAuditSender, error) {
	sender, err := client.NewSender(queueOrTopic, nil)
	if err != nil {
		return nil, err
	}
	return &AzureServiceBusAuditSender{sender: sender}, nil
}

func (a *AzureServiceBusAuditSender) Send(ctx context.Context, tenant ids.TenantId, eventType, detail string) error {
	msg := &azservicebus.Message{
		Body: []byte(fmt.Sprintf("%s: %s", eventType, detail)),
		ApplicationProperties: map[string]interface{}{
			"tenant":     tenant.Uint64(),
			"event_type": eventType,
		},
	}
	return a.sender.SendMessage(ctx, msg, nil)
}

func (a *AzureServiceBusAuditSender) Close(ctx context.Context) error {
	return a.sender.Close(ctx)
}
