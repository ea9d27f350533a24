package config

import "os"

// AzureConfig holds the resolved storage account, queue, and document-store
// endpoints the engine talks to, plus the subset of environment indicators
// used by pkg/azureauth to pick a credential from the chain (§4.A).
type AzureConfig struct {
	// StorageAccountName is the account hosting the work queue (and, by
	// convention, the blob containers tools write artifacts to).
	StorageAccountName string

	// QueueName is the primary work queue name. The dead-letter queue
	// defaults to "<QueueName>-dead-letter", mirroring the original service.
	QueueName string

	// DeadLetterQueueName is derived from QueueName unless overridden.
	DeadLetterQueueName string

	// CosmosEndpoint is the telemetry document-store account endpoint.
	CosmosEndpoint string

	// CosmosDatabase and CosmosContainer name the telemetry store's backing
	// database/container (processes collection, §4.C).
	CosmosDatabase  string
	CosmosContainer string

	// AppConfigEndpoint optionally points at an Azure App Configuration
	// store used to augment env-sourced settings (§4.A "RemoteConfigSource").
	// Empty disables remote augmentation.
	AppConfigEndpoint string

	// ManagedIdentityClientID selects a user-assigned managed identity when
	// set; an empty value means system-assigned (when running on a
	// managed host) per the credential selection policy.
	ManagedIdentityClientID string
}

// AzureConfigFromEnv resolves Azure settings from environment variables.
func AzureConfigFromEnv() *AzureConfig {
	queueName := getenvDefault("QUEUE_NAME", "migration-requests")
	return &AzureConfig{
		StorageAccountName:      os.Getenv("STORAGE_ACCOUNT_NAME"),
		QueueName:               queueName,
		DeadLetterQueueName:     getenvDefault("DEAD_LETTER_QUEUE_NAME", queueName+"-dead-letter"),
		CosmosEndpoint:          os.Getenv("COSMOS_ENDPOINT"),
		CosmosDatabase:          getenvDefault("COSMOS_DATABASE", "migration"),
		CosmosContainer:         getenvDefault("COSMOS_CONTAINER", "processes"),
		AppConfigEndpoint:       os.Getenv("APP_CONFIG_ENDPOINT"),
		ManagedIdentityClientID: os.Getenv("AZURE_CLIENT_ID"),
	}
}

func getenvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
