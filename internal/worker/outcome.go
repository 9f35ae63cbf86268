package worker

import "log/slog"

// outcomeKind classifies how one unit of work ended. Every kind except
// infrastructure is a handled result: the message is acknowledged and the
// queue moves on. Infrastructure failures leave the message unacknowledged
// so the visibility timeout redelivers it.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	// outcomeSkip: the referenced row is missing or owned elsewhere;
	// nothing was mutated here and retrying would not help.
	outcomeSkip
	// outcomeError: a terminal business failure was recorded on the row
	// (resolution or transfer error).
	outcomeError
	// outcomeInfra: the store or queue was unavailable; no terminal status
	// was written.
	outcomeInfra
)

type outcome struct {
	kind outcomeKind
	note string
	err  error
}

// ack reports whether the message should be deleted from the queue.
func (o outcome) ack() bool {
	return o.kind != outcomeInfra
}

func (o outcome) log(entity, ref string) {
	switch o.kind {
	case outcomeOK:
		slog.Info(entity+" processed", "id", ref, "note", o.note)
	case outcomeSkip:
		slog.Warn(entity+" skipped", "id", ref, "note", o.note, "error", o.err)
	case outcomeError:
		slog.Error(entity+" failed", "id", ref, "note", o.note, "error", o.err)
	case outcomeInfra:
		slog.Error(entity+" deferred for redelivery", "id", ref, "note", o.note, "error", o.err)
	}
}
