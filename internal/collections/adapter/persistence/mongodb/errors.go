package mongodb

import (
	"context"
	stderrors "errors"

	"docdb-binder/internal/shared/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// namespaceExistsCode is returned by create on an existing collection.
const namespaceExistsCode = 48

// mapError converts a driver failure into the shared error taxonomy. When the
// context is done its error is returned unchanged instead of the driver's wrapper.
func mapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return errors.NewConflictError(op + ": duplicate key").WithCause(err)
	}
	if isNamespaceExists(err) {
		return errors.NewConflictError(op + ": namespace already exists").WithCause(err)
	}
	return errors.NewRemoteError(op+" failed", err).WithComponent("mongodb_client")
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) {
		return cmdErr.Code == namespaceExistsCode
	}
	return false
}
