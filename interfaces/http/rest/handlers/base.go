package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"flowstudio/application/commands/bus"
	querybus "flowstudio/application/queries/bus"
	"flowstudio/pkg/common"
	pkgerrors "flowstudio/pkg/errors"
)

// maxBodyBytes bounds request bodies. Crop results travel as data URLs,
// hence the generous limit.
const maxBodyBytes = 16 << 20

// base carries what every handler needs
type base struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

func newBase(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errs == nil {
		errs = pkgerrors.NewErrorHandler(logger, false)
	}
	return base{commandBus: commandBus, queryBus: queryBus, errors: errs, logger: logger}
}

// decode reads a JSON body into v. An empty body is accepted when
// optional is set. It reports false after writing the error response.
func (b base) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	err := common.ParseJSONBody(w, r, v, maxBodyBytes)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	b.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
	return false
}

// send dispatches cmd and writes its result with status.
func (b base) send(w http.ResponseWriter, r *http.Request, cmd bus.Command, status int) {
	result, err := b.commandBus.Send(r.Context(), cmd)
	if err != nil {
		b.errors.Handle(w, r, err)
		return
	}
	if status == http.StatusNoContent {
		common.RespondNoContent(w)
		return
	}
	common.RespondJSON(w, r, status, result)
}

// ask runs query and writes its result.
func (b base) ask(w http.ResponseWriter, r *http.Request, query querybus.Query) {
	result, err := b.queryBus.Ask(r.Context(), query)
	if err != nil {
		b.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, r, http.StatusOK, result)
}
