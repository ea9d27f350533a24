package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// cosmosDocument is the Cosmos DB document shape for a ProcessRecord. The
// process id also serves as the partition key, so all writes for one
// process land on the same physical partition and its per-process mutex
// is sufficient to avoid lost updates from concurrent agent turns.
type cosmosDocument struct {
	ID           string            `json:"id"`
	ProcessID    string            `json:"processId"`
	Phase        string            `json:"phase"`
	Status       string            `json:"status"`
	LastUpdated  string            `json:"lastUpdated"`
	Activity     []ActivityEntry   `json:"activity"`
	PhaseOutputs map[string]string `json:"phaseOutputs,omitempty"`
	ETag         string            `json:"_etag,omitempty"`
}

// CosmosStore is the production Store backed by a single Cosmos DB
// container. Reads and read-modify-writes for the same process are
// serialized client-side via per-process mutexes, mirroring the worker
// pool's per-session cancel-function registry pattern.
type CosmosStore struct {
	container *azcosmos.ContainerClient

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCosmosStore creates a CosmosStore backed by containerClient.
func NewCosmosStore(containerClient *azcosmos.ContainerClient) *CosmosStore {
	return &CosmosStore{container: containerClient, locks: make(map[string]*sync.Mutex)}
}

// NewCosmosStoreFromEndpoint dials a Cosmos account and resolves the given
// database/container, for use by the service's startup wiring.
func NewCosmosStoreFromEndpoint(endpoint, database, container string, cred azcore.TokenCredential) (*CosmosStore, error) {
	client, err := azcosmos.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating cosmos client: %w", err)
	}
	containerClient, err := client.NewContainer(database, container)
	if err != nil {
		return nil, fmt.Errorf("resolving container %s/%s: %w", database, container, err)
	}
	return NewCosmosStore(containerClient), nil
}

func (s *CosmosStore) lockFor(processID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[processID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[processID] = l
	}
	return l
}

func (s *CosmosStore) readDocument(ctx context.Context, processID string) (*cosmosDocument, error) {
	pk := azcosmos.NewPartitionKeyString(processID)
	resp, err := s.container.ReadItem(ctx, pk, processID, nil)
	if err != nil {
		var cosmosErr *azcore.ResponseError
		if errors.As(err, &cosmosErr) && cosmosErr.StatusCode == 404 {
			return &cosmosDocument{ID: processID, ProcessID: processID}, nil
		}
		return nil, fmt.Errorf("reading process record %s: %w", processID, err)
	}
	var doc cosmosDocument
	if err := unmarshalItem(resp.Value, &doc); err != nil {
		return nil, fmt.Errorf("decoding process record %s: %w", processID, err)
	}
	return &doc, nil
}

func (s *CosmosStore) writeDocument(ctx context.Context, doc *cosmosDocument) error {
	body, err := marshalItem(doc)
	if err != nil {
		return fmt.Errorf("encoding process record %s: %w", doc.ProcessID, err)
	}
	pk := azcosmos.NewPartitionKeyString(doc.ProcessID)
	_, err = s.container.UpsertItem(ctx, pk, body, nil)
	if err != nil {
		return fmt.Errorf("writing process record %s: %w", doc.ProcessID, err)
	}
	return nil
}

func (s *CosmosStore) mutate(ctx context.Context, processID string, fn func(doc *cosmosDocument)) error {
	lock := s.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.readDocument(ctx, processID)
	if err != nil {
		return err
	}
	fn(doc)
	return s.writeDocument(ctx, doc)
}

func (s *CosmosStore) MarkAgentActive(ctx context.Context, processID, agentName string) error {
	return s.mutate(ctx, processID, func(doc *cosmosDocument) {
		applyActivity(doc, ActivityEntry{AgentName: agentName, Kind: ActivityAgentActive, Detail: "agent became active"})
	})
}

func (s *CosmosStore) TrackToolUsage(ctx context.Context, processID, agentName, toolCategory, toolAction, details string) error {
	return s.mutate(ctx, processID, func(doc *cosmosDocument) {
		applyActivity(doc, ActivityEntry{
			AgentName: agentName,
			Kind:      ActivityToolUsage,
			Detail:    fmt.Sprintf("%s/%s: %s", toolCategory, toolAction, details),
		})
	})
}

func (s *CosmosStore) RecordPhaseTransition(ctx context.Context, processID, phase, status string) error {
	return s.mutate(ctx, processID, func(doc *cosmosDocument) {
		doc.Phase = phase
		doc.Status = status
		applyActivity(doc, ActivityEntry{Kind: ActivityPhaseTransition, Detail: fmt.Sprintf("phase=%s status=%s", phase, status)})
	})
}

func (s *CosmosStore) RecordTermination(ctx context.Context, processID, reason string) error {
	return s.mutate(ctx, processID, func(doc *cosmosDocument) {
		applyActivity(doc, ActivityEntry{Kind: ActivityTermination, Detail: reason})
	})
}

func (s *CosmosStore) RecordPhaseOutput(ctx context.Context, processID, phase, outputJSON string) error {
	return s.mutate(ctx, processID, func(doc *cosmosDocument) {
		if doc.PhaseOutputs == nil {
			doc.PhaseOutputs = make(map[string]string)
		}
		doc.PhaseOutputs[phase] = outputJSON
		doc.LastUpdated = now().Format(timestampLayout)
	})
}

func (s *CosmosStore) Get(ctx context.Context, processID string) (*ProcessRecord, error) {
	doc, err := s.readDocument(ctx, processID)
	if err != nil {
		return nil, err
	}
	lastUpdated, _ := parseTimestamp(doc.LastUpdated)
	return &ProcessRecord{
		ProcessID:    doc.ProcessID,
		Phase:        doc.Phase,
		Status:       doc.Status,
		LastUpdated:  lastUpdated,
		Activity:     doc.Activity,
		PhaseOutputs: doc.PhaseOutputs,
	}, nil
}

func applyActivity(doc *cosmosDocument, entry ActivityEntry) {
	entry.Timestamp = now()
	doc.Activity = appendBounded(doc.Activity, entry)
	doc.LastUpdated = entry.Timestamp.Format(timestampLayout)
}
