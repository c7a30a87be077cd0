// internal/app/features/register/live.go
package register

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/signup/internal/domain/registration"
	"github.com/dalemusser/signup/metrics"
	apperrors "github.com/dalemusser/signup/pantry/errors"
	"github.com/dalemusser/signup/pantry/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Live message types.
const (
	msgEvent  = "event"
	msgSubmit = "submit"
	msgState  = "state"
	msgResult = "result"
	msgError  = "error"
)

// writeTimeout bounds one broadcast of a view.
const writeTimeout = 5 * time.Second

func (h *Handler) liveRouter() *websocket.Router {
	r := websocket.NewRouter()
	r.Handle(msgEvent, h.onEvent)
	r.Handle(msgSubmit, h.onSubmit)
	r.Default(h.onUnknown)
	return r
}

// serveLive upgrades to a websocket, sends the current view, then handles
// events and submits until the browser goes away. View changes reach every
// connection of the page through the hub.
func (h *Handler) serveLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	ctl, err := h.pages.Get(r.Context(), id)
	if err != nil {
		apperrors.Write(w, r, pageError(err), h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("page_id", id), zap.Error(err))
		return
	}
	client, err := h.hub.Join(id, uuid.NewString(), conn)
	if err != nil {
		_ = conn.CloseWithReason(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	metrics.LiveConnectionOpened()
	defer metrics.LiveConnectionClosed()

	log := h.logger.With(zap.String("page_id", id), zap.String("client_id", client.ID()))
	log.Debug("live connection opened")

	ctx := r.Context()
	if err := client.SendTyped(ctx, msgState, ctl.View()); err != nil {
		_ = conn.Close()
		return
	}

	err = h.ws.Serve(ctx, client, h.live)
	_ = conn.Close()
	if !websocket.IsNormalClose(err) {
		log.Debug("live connection ended", zap.Error(err))
	}
	h.closeIfGone(context.WithoutCancel(ctx), id, err)
}

func (h *Handler) sendError(ctx context.Context, client *websocket.Client, in *websocket.Message, err error) error {
	e := apperrors.From(err)
	if e.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.Error("live request failed", zap.String("page_id", client.Room()), zap.Error(err))
	}
	msg, merr := websocket.NewMessage(msgError, e.Body())
	if merr != nil {
		return merr
	}
	msg.ID = in.ID
	return client.Send(ctx, msg)
}

func (h *Handler) onEvent(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	if !h.limiter.Allow(client.Room() + "|" + client.ID()) {
		return h.sendError(ctx, client, msg, apperrors.TooManyRequests("too many events; slow down"))
	}
	var ev registration.Event
	if err := msg.ParsePayload(&ev); err != nil {
		return h.sendError(ctx, client, msg, apperrors.BadRequest("invalid event payload"))
	}
	ctl, err := h.pages.Get(ctx, client.Room())
	if err != nil {
		return h.sendError(ctx, client, msg, pageError(err))
	}
	// The resulting view reaches this client through the hub broadcast.
	if _, err := ctl.Dispatch(ev); err != nil {
		return h.sendError(ctx, client, msg, pageError(err))
	}
	return nil
}

func (h *Handler) onSubmit(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var raw map[string]string
	if err := msg.ParsePayload(&raw); err != nil {
		return h.sendError(ctx, client, msg, apperrors.BadRequest("invalid submit payload"))
	}
	var values registration.Values
	if raw != nil {
		values = make(registration.Values, len(raw))
		for k, v := range raw {
			values[registration.FieldName(k)] = v
		}
	}

	ctl, err := h.pages.Get(ctx, client.Room())
	if err != nil {
		return h.sendError(ctx, client, msg, pageError(err))
	}
	res, err := ctl.Submit(values)
	countSubmit(res, err)
	if err != nil {
		return h.sendError(ctx, client, msg, pageError(err))
	}

	out, err := websocket.NewMessage(msgResult, res)
	if err != nil {
		return err
	}
	out.ID = msg.ID
	return client.Send(ctx, out)
}

func (h *Handler) onUnknown(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	if msg.Type == websocket.TypeInvalid {
		return h.sendError(ctx, client, msg, apperrors.BadRequest("message is not valid JSON"))
	}
	return h.sendError(ctx, client, msg, apperrors.BadRequest("unknown message type "+msg.Type))
}

// Broadcaster returns a store.Options.OnChange function that pushes each
// view to every live connection of its page.
func Broadcaster(hub *websocket.Hub, logger *zap.Logger) func(registration.View) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(v registration.View) {
		if hub.RoomSize(v.ID) == 0 {
			return
		}
		msg, err := websocket.NewMessage(msgState, v)
		if err != nil {
			logger.Error("encode view failed", zap.String("page_id", v.ID), zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := hub.Broadcast(ctx, v.ID, msg); err != nil {
			logger.Debug("broadcast failed", zap.String("page_id", v.ID), zap.Error(err))
		}
	}
}
