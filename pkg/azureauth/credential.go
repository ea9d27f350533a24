// Package azureauth selects an Azure credential from the chain based on the
// hosting environment, so the same binary authenticates correctly whether
// it's running on a developer's machine, an AKS pod, or an App Service
// instance.
package azureauth

import (
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// azureEnvIndicators are environment variables present when running on an
// Azure-managed host, in order of how reliably they signal it.
var azureEnvIndicators = []string{
	"WEBSITE_SITE_NAME",          // App Service
	"AZURE_CLIENT_ID",            // User-assigned managed identity
	"MSI_ENDPOINT",               // System-assigned managed identity
	"IDENTITY_ENDPOINT",          // Newer managed identity endpoint
	"KUBERNETES_SERVICE_HOST",    // AKS container
	"CONTAINER_REGISTRY_LOGIN",   // Azure Container Registry
}

// Diagnostics summarizes the resolved authentication setup for health
// endpoints and startup logging.
type Diagnostics struct {
	Environment        string
	CredentialType     string
	CredentialTypeName string
	Recommendations    []string
}

func isAzureHosted() bool {
	for _, indicator := range azureEnvIndicators {
		if os.Getenv(indicator) != "" {
			return true
		}
	}
	return false
}

// GetCredential resolves the appropriate azcore.TokenCredential for the
// current environment:
//
//   - Azure-hosted (container, AKS, App Service, VM): ManagedIdentityCredential,
//     user-assigned via AZURE_CLIENT_ID if set, otherwise system-assigned.
//   - Local development: AzureDeveloperCLICredential, then AzureCLICredential.
//   - Fallback: DefaultAzureCredential (composite chain).
func GetCredential() (azcore.TokenCredential, error) {
	if isAzureHosted() {
		slog.Info("detected Azure-hosted environment, using managed identity")
		clientID := os.Getenv("AZURE_CLIENT_ID")
		if clientID != "" {
			slog.Info("using user-assigned managed identity", "client_id", clientID)
			return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
				ID: azidentity.ClientID(clientID),
			})
		}
		slog.Info("using system-assigned managed identity")
		return azidentity.NewManagedIdentityCredential(nil)
	}

	slog.Info("local development detected, trying Azure Developer CLI credential")
	if cred, err := azidentity.NewAzureDeveloperCLICredential(nil); err == nil {
		return cred, nil
	} else {
		slog.Warn("azure developer CLI credential unavailable", "error", err)
	}

	slog.Info("trying Azure CLI credential")
	if cred, err := azidentity.NewAzureCLICredential(nil); err == nil {
		return cred, nil
	} else {
		slog.Warn("azure CLI credential unavailable", "error", err)
	}

	slog.Info("falling back to DefaultAzureCredential")
	return azidentity.NewDefaultAzureCredential(nil)
}

// Validate reports the resolved authentication setup, for use by the
// readiness endpoint and operational diagnostics.
func Validate() Diagnostics {
	diag := Diagnostics{}

	if isAzureHosted() {
		diag.Environment = "azure_hosted"
		diag.CredentialType = "managed_identity"
		if os.Getenv("AZURE_CLIENT_ID") != "" {
			diag.Recommendations = append(diag.Recommendations,
				"using user-assigned managed identity - ensure proper RBAC roles are assigned")
		} else {
			diag.Recommendations = append(diag.Recommendations,
				"using system-assigned managed identity - ensure it is enabled and has proper RBAC roles")
		}
	} else {
		diag.Environment = "local_development"
		diag.CredentialType = "cli_credentials"
		diag.Recommendations = append(diag.Recommendations,
			"authenticate with 'azd auth login' or 'az login' before running locally",
			"verify the active subscription with 'az account show'")
	}

	cred, err := GetCredential()
	if err != nil {
		diag.CredentialTypeName = "none"
		diag.Recommendations = append(diag.Recommendations, "authentication setup failed: "+err.Error())
		return diag
	}
	diag.CredentialTypeName = credentialTypeName(cred)
	return diag
}

func credentialTypeName(cred azcore.TokenCredential) string {
	switch cred.(type) {
	case *azidentity.ManagedIdentityCredential:
		return "ManagedIdentityCredential"
	case *azidentity.AzureDeveloperCLICredential:
		return "AzureDeveloperCLICredential"
	case *azidentity.AzureCLICredential:
		return "AzureCLICredential"
	case *azidentity.DefaultAzureCredential:
		return "DefaultAzureCredential"
	default:
		return "unknown"
	}
}
