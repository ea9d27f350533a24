// Package blobref names the blob artifacts a process's phases produce and
// consume, and hands tool implementations a configured client to reach
// them. Actual blob I/O is an explicit Non-goal owned by tool
// implementations outside this module; this package only fixes the path
// convention and the client construction contract those tools depend on.
package blobref

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Ref identifies a single blob by container and path within it.
type Ref struct {
	Container string
	Path      string
}

// String renders the reference in "container/path" form.
func (r Ref) String() string {
	return r.Container + "/" + r.Path
}

// ForProcess builds the conventional blob path for an artifact produced
// during a process's phase: "<processId>/<folder>/<fileName>".
func ForProcess(container, processID, folder, fileName string) Ref {
	return Ref{Container: container, Path: fmt.Sprintf("%s/%s/%s", processID, folder, fileName)}
}

// Parse splits a "container/path" reference string produced by a tool call
// back into a Ref.
func Parse(reference string) (Ref, error) {
	idx := strings.IndexByte(reference, '/')
	if idx <= 0 || idx == len(reference)-1 {
		return Ref{}, fmt.Errorf("invalid blob reference %q: expected container/path", reference)
	}
	return Ref{Container: reference[:idx], Path: reference[idx+1:]}, nil
}

// NewServiceClient builds the azblob.Client tool implementations use to
// read and write artifacts. The engine itself never calls it; wiring it
// into a concrete tool is the tool plugin's responsibility.
func NewServiceClient(accountURL string, cred azcore.TokenCredential) (*azblob.Client, error) {
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client for %s: %w", accountURL, err)
	}
	return client, nil
}
