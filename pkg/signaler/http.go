package signaler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/holomesh/holomesh/pkg/api"
	"github.com/holomesh/holomesh/pkg/network/httpx"
	"github.com/holomesh/holomesh/pkg/registry"
	"github.com/holomesh/holomesh/pkg/relay"
)

// roomsHandler serves the room directory: GET lists or searches public
// rooms, POST creates a new room from a registry.RoomSpec body.
func roomsHandler(rooms *registry.Registry) httpx.Handler {
	return httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			filters := api.SearchFilters{Template: q.Get("template")}
			if v := q.Get("min_users"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					writeError(w, api.Errorf(api.ErrValidation, "bad min_users [%v]", v))
					return
				}
				filters.MinUsers = n
			}
			if v := q.Get("capabilities"); v != "" {
				filters.Capabilities = strings.Split(v, ",")
			}
			writeJSON(w, http.StatusOK, api.RoomListResponse{Rooms: rooms.Search(q.Get("q"), filters)})
		case http.MethodPost:
			var spec registry.RoomSpec
			if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
				writeError(w, api.Errorf(api.ErrValidation, "bad room spec, %v", err))
				return
			}
			info, err := rooms.Create(spec)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, info)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})
}

func statsHandler(router *relay.Relay) httpx.Handler {
	return httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, router.Stats())
	})
}

func writeJSON(w httpx.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w httpx.ResponseWriter, err error) {
	coded, ok := err.(*api.CodedError)
	if !ok {
		coded = api.Errorf(api.ErrValidation, "%v", err)
	}
	writeJSON(w, httpStatusOf(coded.Code), coded)
}

func httpStatusOf(code api.ErrCode) int {
	switch code {
	case api.ErrRoomNotFound, api.ErrConnNotFound, api.ErrObjectNotFound, api.ErrParticipantNotFound:
		return http.StatusNotFound
	case api.ErrDuplicateRoom, api.ErrDuplicateUser, api.ErrRoomFull, api.ErrConnLimit, api.ErrObjectLimit:
		return http.StatusConflict
	case api.ErrPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
