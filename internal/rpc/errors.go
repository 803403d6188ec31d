package rpc

import (
	"chainforge/internal/errs"
)

// toRPCError maps the internal taxonomy onto the stable JSON-RPC codes
// for the chain's clients; anything without a class lands as
// UnexpectedError.
func toRPCError(err error) *rpcError {
	e := errs.AsError(err)
	switch e.Class {
	case errs.NotFound, errs.Validation, errs.Execution:
		return &rpcError{Code: e.Code, Message: e.Message}
	case errs.Transport:
		return &rpcError{Code: errs.CodeInternal, Message: "upstream unavailable", Data: e.Error()}
	default:
		return &rpcError{Code: 63, Message: "UnexpectedError", Data: map[string]string{"reason": e.Error()}}
	}
}

func blockNotFound() error {
	return errs.NotFoundf(errs.CodeBlockNotFound, "Block not found")
}

func txnHashNotFound() error {
	return errs.NotFoundf(errs.CodeTxnHashNotFound, "Transaction hash not found")
}

func contractNotFound() error {
	return errs.NotFoundf(errs.CodeContractNotFound, "Contract not found")
}

func classHashNotFound() error {
	return errs.NotFoundf(errs.CodeClassHashNotFound, "Class hash not found")
}

func invalidTxnIndex() error {
	return errs.NotFoundf(errs.CodeInvalidTxnIndex, "Invalid transaction index in a block")
}

func pageSizeTooBig() error {
	return errs.Validationf(errs.CodePageSizeTooBig, "Requested page size is too big")
}

func validationErr(format string, args ...interface{}) error {
	return errs.Validationf(errs.CodeContractError, format, args...)
}
