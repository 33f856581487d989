package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lazharichir/blackjack/config"
	"github.com/lazharichir/blackjack/server/connection"
	"github.com/lazharichir/blackjack/store"
	"github.com/lazharichir/blackjack/strategy"
	"github.com/lazharichir/blackjack/table"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checks
	},
}

// Server owns the WebSocket endpoint, the table engine and the 1 Hz
// ticker that drives timed transitions.
type Server struct {
	cfg     config.Settings
	log     zerolog.Logger
	backend store.Backend
	repo    *store.Repo
	engine  *table.Engine
	connMgr *connection.Manager
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// NewServer wires the storage backend, engine and connection manager.
func NewServer(cfg config.Settings, backend store.Backend, log zerolog.Logger) *Server {
	repo := store.NewRepo(backend, cfg)
	return &Server{
		cfg:     cfg,
		log:     log,
		backend: backend,
		repo:    repo,
		engine:  table.NewEngine(repo, cfg, log),
		connMgr: connection.NewManager(),
	}
}

// Start begins serving on cfg.Addr. Blocks.
func (s *Server) Start() error {
	go s.connMgr.Start()
	go s.runTicker(context.Background())

	http.HandleFunc("/ws/blackjack", s.handleWebSocket)
	http.HandleFunc("/health", corsMiddleware(s.handleHealth))
	http.HandleFunc("/strategy/blackjack", corsMiddleware(s.handleStrategy))

	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting server")
	return http.ListenAndServe(s.cfg.Addr, nil)
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &connection.Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 256),
	}
	s.log.Debug().Str("client_id", client.ID).Str("remote", r.RemoteAddr).Msg("client connected")

	s.connMgr.Register <- client

	go s.readPump(client)
	go s.writePump(client)
}

// readPump reads messages from the WebSocket connection
func (s *Server) readPump(client *connection.Client) {
	defer func() {
		s.handleDisconnect(client)
		s.connMgr.Unregister <- client
		client.Conn.Close()
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug().Err(err).Str("client_id", client.ID).Msg("read error")
			}
			break
		}
		s.handleMessage(context.Background(), client, message)
	}
}

// writePump sends messages to the WebSocket connection
func (s *Server) writePump(client *connection.Client) {
	defer client.Conn.Close()

	for {
		message, ok := <-client.Send
		if !ok {
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// handleDisconnect marks the player disconnected so the grace timer can
// reclaim the seat. The connection may reconnect with its token first.
func (s *Server) handleDisconnect(client *connection.Client) {
	pid, tid := client.PlayerID(), client.TableID()
	if pid == "" || tid == "" {
		return
	}
	ctx := context.Background()
	err := store.WithTableLock(ctx, s.backend, tid, func() error {
		return s.repo.MarkDisconnected(ctx, tid, pid)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("player_id", pid).Msg("disconnect mark failed")
	}
}

// handleMessage routes one client message. Errors go back to the same
// connection; the socket stays open.
func (s *Server) handleMessage(ctx context.Context, client *connection.Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.connMgr.SendToClient(client.ID, errorJSON(CodeBadJSON, "malformed message"))
		return
	}

	if msg.Type == MsgHello {
		s.handleHello(ctx, client, msg)
		return
	}
	if client.PlayerID() == "" {
		s.connMgr.SendToClient(client.ID, errorJSON(CodeHelloRequired, "say HELLO first"))
		return
	}
	if msg.Type == MsgJoinTable {
		s.handleJoin(ctx, client, msg)
		return
	}
	if client.TableID() == "" {
		s.connMgr.SendToClient(client.ID, errorJSON(CodeJoinRequired, "join a table first"))
		return
	}

	switch msg.Type {
	case MsgSync:
		s.handleSync(ctx, client, msg)
	case MsgReadyToggle:
		s.runOp(ctx, client, CodeReadyDenied, func(buf *table.EventBuffer) error {
			return s.engine.ReadyToggle(ctx, client.TableID(), client.PlayerID(), buf)
		})
	case MsgStartSession:
		s.runOp(ctx, client, CodeStartDenied, func(buf *table.EventBuffer) error {
			return s.engine.StartSession(ctx, client.TableID(), client.PlayerID(), buf)
		})
	case MsgAdminConfig:
		if msg.Config == nil {
			s.connMgr.SendToClient(client.ID, errorJSON(CodeAdminDenied, "no config changes supplied"))
			return
		}
		s.runOp(ctx, client, CodeAdminDenied, func(buf *table.EventBuffer) error {
			return s.engine.HandleAdminConfig(ctx, client.TableID(), client.PlayerID(), table.AdminConfig{
				StartingBankroll:          msg.Config.StartingBankroll,
				MinBet:                    msg.Config.MinBet,
				MaxBet:                    msg.Config.MaxBet,
				ShoeDecks:                 msg.Config.ShoeDecks,
				ReshuffleWhenRemainingPct: msg.Config.ReshuffleWhenRemainingPct,
			}, buf)
		})
	case MsgPlaceBet:
		s.runOp(ctx, client, CodeBetDenied, func(buf *table.EventBuffer) error {
			return s.engine.HandlePlaceBet(ctx, client.TableID(), client.PlayerID(), msg.Amount, msg.RequestID, buf)
		})
	case MsgAction:
		s.runOp(ctx, client, CodeActionDenied, func(buf *table.EventBuffer) error {
			return s.engine.HandleAction(ctx, client.TableID(), client.PlayerID(), msg.Action, msg.RequestID, buf)
		})
	case MsgVoteContinue:
		s.runOp(ctx, client, CodeVoteDenied, func(buf *table.EventBuffer) error {
			return s.engine.HandleVoteContinue(ctx, client.TableID(), client.PlayerID(), msg.Vote, msg.RequestID, buf)
		})
	default:
		s.connMgr.SendToClient(client.ID, errorJSON(CodeBadRequest, "unknown message type"))
	}
}

func (s *Server) handleHello(ctx context.Context, client *connection.Client, msg ClientMessage) {
	id, err := s.engine.Hello(ctx, msg.ReconnectToken)
	if err != nil {
		s.connMgr.SendToClient(client.ID, errorJSON(CodeUnhandled, err.Error()))
		return
	}
	client.Identify(id.PlayerID, msg.Nickname)
	s.connMgr.SendToClient(client.ID, mustJSON(WelcomeMessage{
		Type:           MsgWelcome,
		PlayerID:       id.PlayerID,
		ReconnectToken: id.ReconnectToken,
	}))
}

func (s *Server) handleJoin(ctx context.Context, client *connection.Client, msg ClientMessage) {
	tid := msg.TableID
	if tid == "" {
		tid = s.cfg.TableID
	}
	pid := client.PlayerID()
	nickname := client.Nickname()
	if msg.Nickname != "" {
		nickname = msg.Nickname
	}

	buf := &table.EventBuffer{}
	var seat int
	err := store.WithTableLock(ctx, s.backend, tid, func() error {
		if err := s.engine.JoinTable(ctx, tid, pid, nickname, msg.ReconnectToken, msg.Seat, buf); err != nil {
			return err
		}
		var err error
		seat, err = s.repo.SeatForPlayer(ctx, tid, pid)
		return err
	})
	if err != nil {
		s.connMgr.SendToClient(client.ID, errorJSON(CodeJoinDenied, err.Error()))
		return
	}

	client.BindTable(tid, seat)
	s.appendAndBroadcast(ctx, tid, buf)
	s.sendSnapshot(ctx, client, tid)
}

// runOp executes one engine operation under the table lock, then
// appends and broadcasts its events and pushes fresh snapshots.
func (s *Server) runOp(ctx context.Context, client *connection.Client, errCode string, op func(buf *table.EventBuffer) error) {
	tid, pid := client.TableID(), client.PlayerID()

	buf := &table.EventBuffer{}
	err := store.WithTableLock(ctx, s.backend, tid, func() error {
		if err := op(buf); err != nil {
			return err
		}
		return s.repo.UpdateLastSeen(ctx, tid, pid)
	})
	if err != nil {
		s.connMgr.SendToClient(client.ID, errorJSON(errCode, err.Error()))
		return
	}

	s.appendAndBroadcast(ctx, tid, buf)
	s.broadcastSnapshots(ctx, tid)
	s.destroyIfEnded(ctx, tid)
}

// handleSync resends a personalized snapshot plus the event backlog
// after last_event_id (or the stream tail when absent).
func (s *Server) handleSync(ctx context.Context, client *connection.Client, msg ClientMessage) {
	tid := client.TableID()
	s.sendSnapshot(ctx, client, tid)

	events, err := store.ReadEvents(ctx, s.backend, tid, msg.LastEventID)
	if err != nil {
		s.connMgr.SendToClient(client.ID, errorJSON(CodeUnhandled, err.Error()))
		return
	}
	for _, ev := range events {
		if wire := s.rePersonalizeStoredEvent(ctx, tid, ev, client.Seat()); wire != nil {
			s.connMgr.SendToClient(client.ID, wire)
		}
	}
}

// destroyIfEnded clears all table keys once the terminal phase has been
// broadcast, so the table id can be reused.
func (s *Server) destroyIfEnded(ctx context.Context, tid string) {
	meta, err := s.repo.GetMeta(ctx, tid)
	if err != nil || meta["phase"] != string(table.PhaseSessionEnded) {
		return
	}
	if err := s.repo.ClearTable(ctx, tid); err != nil {
		s.log.Error().Err(err).Str("table_id", tid).Msg("table cleanup failed")
	}
}

// handleStrategy scores stand/hit/double for a posted decision state.
func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req strategy.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := strategy.Analyze(req)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
