package server

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// recoverTurn turns a panic inside an API handler into the same fatal
// envelope a failed turn produces, so clients always get a speakable reply.
func recoverTurn(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContext(r.Context(), log).Error("HTTP request panic recovered",
					logger.StringField("panic_error", fmt.Sprintf("%v", rec)),
					logger.HTTPMethodField(r.Method),
					logger.HTTPPathField(r.URL.Path),
					logger.StringField("stack_trace", string(debug.Stack())),
				)
				w.Header().Set("Connection", "close")
				writeJSON(w, http.StatusInternalServerError, conversation.FatalReply())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
