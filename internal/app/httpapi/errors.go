package httpapi

import (
	"errors"
	"net/http"

	"github.com/R3E-Network/renkonet/internal/database"
	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/httputil"
	"github.com/R3E-Network/renkonet/services/topics"
)

// writeError maps view and gateway errors onto the JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *topics.PartialError
	switch {
	case errors.As(err, &partial):
		err = svcerrors.Wrap(err, svcerrors.CodeGateway, partial.Error(), http.StatusBadGateway).
			WithDetails("topic_id", partial.TopicID)
	case svcerrors.GetServiceError(err) != nil:
	case database.IsNotFound(err):
		err = svcerrors.Wrap(err, svcerrors.CodeNotFound, err.Error(), http.StatusNotFound)
	case database.IsConflict(err):
		err = svcerrors.Wrap(err, svcerrors.CodeConflict, err.Error(), http.StatusConflict)
	case errors.Is(err, database.ErrInvalidInput):
		err = svcerrors.Wrap(err, svcerrors.CodeInvalidInput, err.Error(), http.StatusBadRequest)
	default:
		err = svcerrors.Gateway("request", err)
	}
	if svcerrors.HTTPStatus(err) >= http.StatusInternalServerError {
		s.log.WithContext(r.Context()).WithError(err).Warn("request failed")
	}
	httputil.WriteServiceError(w, r, err)
}
