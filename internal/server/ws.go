package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

const wsSubprotocol = "graphql-ws"

// Message types of the graphql-ws protocol.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgStart               = "start"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
	msgStop                = "stop"
)

type operationMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type startPayload struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// wsSession is one websocket connection with its active operations.
type wsSession struct {
	srv     *Server
	conn    *websocket.Conn
	writeMu sync.Mutex

	opMu sync.Mutex
	ops  map[string]context.CancelFunc
}

// serveWS upgrades the connection and speaks the graphql-ws protocol.
// Stopping an operation or dropping the connection cancels the operation's
// context, which cancels any underlying server stream.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	session := &wsSession{
		srv:  s,
		conn: conn,
		ops:  make(map[string]context.CancelFunc),
	}
	defer session.close()

	for {
		var msg operationMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			session.write(operationMessage{Type: msgConnectionAck})

		case msgStart:
			var payload startPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				session.writeError(msg.ID, "malformed start payload")
				continue
			}
			session.start(r.Context(), msg.ID, payload)

		case msgStop:
			session.stop(msg.ID)

		case msgConnectionTerminate:
			return
		}
	}
}

// start launches one operation. Subscriptions pump the result channel until
// it closes or the operation is stopped; queries and mutations execute once
// under the request timeout.
func (ss *wsSession) start(parent context.Context, id string, payload startPayload) {
	ss.stop(id) // a reused id supersedes the previous operation

	ctx, cancel := context.WithCancel(parent)
	ss.opMu.Lock()
	ss.ops[id] = cancel
	ss.opMu.Unlock()

	params := graphql.Params{
		Schema:         ss.srv.schema,
		RequestString:  payload.Query,
		VariableValues: payload.Variables,
		OperationName:  payload.OperationName,
		Context:        ctx,
	}

	go func() {
		defer ss.stop(id)

		if isSubscription(payload.Query, payload.OperationName) {
			for result := range graphql.Subscribe(params) {
				ss.writeResult(id, result)
			}
		} else {
			execCtx := ctx
			if ss.srv.timeout > 0 {
				var cancelExec context.CancelFunc
				execCtx, cancelExec = context.WithTimeout(ctx, ss.srv.timeout)
				defer cancelExec()
			}
			params.Context = execCtx
			ss.writeResult(id, graphql.Do(params))
		}

		ss.write(operationMessage{ID: id, Type: msgComplete})
	}()
}

// stop cancels an active operation. It is safe to call for unknown ids.
func (ss *wsSession) stop(id string) {
	ss.opMu.Lock()
	cancel, ok := ss.ops[id]
	if ok {
		delete(ss.ops, id)
	}
	ss.opMu.Unlock()
	if ok {
		cancel()
	}
}

// close cancels every active operation and closes the connection.
func (ss *wsSession) close() {
	ss.opMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(ss.ops))
	for _, cancel := range ss.ops {
		cancels = append(cancels, cancel)
	}
	ss.ops = make(map[string]context.CancelFunc)
	ss.opMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	_ = ss.conn.Close()
}

func (ss *wsSession) writeResult(id string, result *graphql.Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		ss.writeError(id, "failed to encode result")
		return
	}
	ss.write(operationMessage{ID: id, Type: msgData, Payload: payload})
}

func (ss *wsSession) writeError(id, reason string) {
	payload, _ := json.Marshal(map[string]string{"message": reason})
	ss.write(operationMessage{ID: id, Type: msgError, Payload: payload})
}

func (ss *wsSession) write(msg operationMessage) {
	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	if err := ss.conn.WriteJSON(msg); err != nil {
		ss.srv.logger.Debug("websocket write failed", slog.Any("error", err))
	}
}

// isSubscription reports whether the selected operation of the document is a
// subscription, which determines whether execution streams or runs once.
func isSubscription(query, operationName string) bool {
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query)}),
	})
	if err != nil {
		return false
	}
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if operationName != "" && (op.Name == nil || op.Name.Value != operationName) {
			continue
		}
		return op.Operation == "subscription"
	}
	return false
}
