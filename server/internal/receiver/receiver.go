package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/measurestack/measurestack/pkg/wire"
	"github.com/measurestack/measurestack/server/internal/store"
)

// Observer is told about every push outcome. The metrics collector
// implements it.
type Observer interface {
	Accepted(channel, sourceID string, records int)
	Rejected(channel, reason string)
}

// Channel is the label value the receiver reports to its Observer.
const Channel = "grpc"

// Receiver implements wire.DatasetServiceServer.
// It validates each incoming dataset and appends it to the repository.
type Receiver struct {
	wire.UnimplementedDatasetServiceServer
	repo *store.Repository
	obs  Observer
}

// New creates a Receiver that writes accepted datasets to repo.
// obs may be nil.
func New(repo *store.Repository, obs Observer) *Receiver {
	return &Receiver{repo: repo, obs: obs}
}

// PushDataset is the unary RPC handler called by agents.
// Authentication is enforced by the gRPC server interceptor before this is called.
func (r *Receiver) PushDataset(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error) {
	ds := req.Dataset
	if ds.ID == "" {
		r.reject("missing_id")
		return nil, status.Error(codes.InvalidArgument, "dataset.id is required")
	}
	if len(ds.Records) == 0 {
		r.reject("no_records")
		return nil, status.Error(codes.InvalidArgument, "dataset has no records")
	}

	err := r.repo.Add(ctx, ds)
	switch {
	case errors.Is(err, store.ErrDuplicateID):
		// Redelivery after a lost ack. The agent must not retry.
		r.reject("duplicate")
		return nil, status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrInvalidDataset):
		r.reject("invalid")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case err != nil:
		r.reject("storage")
		slog.Error("receiver: store dataset", "dataset_id", ds.ID, "err", err)
		return nil, status.Error(codes.Unavailable, "storage unavailable")
	}

	if r.obs != nil {
		r.obs.Accepted(Channel, req.SourceID, len(ds.Records))
	}
	total := len(r.repo.WorkingSet())
	slog.Debug("receiver: dataset stored",
		"agent_id", req.AgentID,
		"source_id", req.SourceID,
		"dataset_id", ds.ID,
		"records", len(ds.Records),
		"working_set", total,
	)

	return &wire.PushResponse{Ok: true, Records: total}, nil
}

func (r *Receiver) reject(reason string) {
	if r.obs != nil {
		r.obs.Rejected(Channel, reason)
	}
}
