package api

import (
	"encoding/json"
	"errors"

	"github.com/example/gymdesk-client/internal/apperror"
)

// authFailure reports rejected credentials and transport failures during
// login or register as authentication errors. The original error stays in
// the chain so errors.Is still recognises a network failure.
func authFailure(op string, err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return &apperror.Error{Kind: apperror.KindAuth, Op: op, Err: err}
	}
	switch appErr.Kind {
	case apperror.KindAuth, apperror.KindValidation, apperror.KindNetwork:
		return &apperror.Error{Kind: apperror.KindAuth, Op: op, Status: appErr.Status, Message: appErr.Message, Err: err}
	default:
		return err
	}
}

// reclassify rewrites the kind of err when its HTTP status is one of statuses.
func reclassify(err error, kind apperror.Kind, statuses ...int) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return err
	}
	for _, status := range statuses {
		if appErr.Status == status {
			return apperror.WithKind(appErr, kind)
		}
	}
	return err
}

func malformed(op string, err error) error {
	return &apperror.Error{Kind: apperror.KindUnknownServer, Op: op, Message: "malformed response", Err: err}
}

func invalidArgument(op, field, message string) error {
	vErr := &apperror.ValidationError{Op: op}
	vErr.Add(field, message)
	return vErr
}

func errOr(err error, message string) error {
	if err != nil {
		return err
	}
	return errors.New(message)
}

func decodeInto(body json.RawMessage, out any) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
