package server

import (
	"copin/internal/chart"
	"copin/internal/codec"
	"copin/internal/engine"
	"copin/internal/form"
	"copin/internal/session"
	"copin/types"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	api := r.Group("/api")
	api.GET("/protocols", s.listProtocols)
	api.GET("/protocols/:protocol/defaults", s.defaults)
	api.GET("/codec/parse", s.parseQuery)
	api.POST("/codec/stringify", s.stringify)
	api.GET("/shares/:id", s.getShare)

	sessions := api.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.deleteSession)
	sessions.POST("/:id/actions", s.dispatch)
	sessions.POST("/:id/submit", s.submit)
	sessions.GET("/:id/summary", s.summary)
	sessions.POST("/:id/share", s.share)
	sessions.GET("/:id/annotations", s.annotations)
	sessions.GET("/:id/ws", s.stream)

	batches := api.Group("/batches")
	batches.POST("", s.createBatch)
	batches.GET("/:id", s.getBatch)
	batches.GET("/:id/rows", s.batchRows)
	batches.GET("/:id/report", s.batchReport)
	batches.GET("/:id/export", s.exportBatch)
	return r
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields []form.FieldError `json:"fields,omitempty"`
}

func abort(c *gin.Context, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *form.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	c.AbortWithStatusJSON(status, resp)
}

// statusFor maps engine errors onto HTTP statuses. Anything unrecognised came from the
// remote API.
func statusFor(err error) int {
	switch {
	case errors.Is(err, form.ErrInvalidValues):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoAccounts), errors.Is(err, engine.ErrNothingToShare), errors.Is(err, engine.ErrUnknownSortColumn):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

var (
	errUnknownProtocol = errors.New("unknown protocol")
	errNoSession       = errors.New("session not found")
	errNoBatch         = errors.New("batch not found")
	errNotTested       = errors.New("instance has no result yet")
	errNoSettings      = errors.New("instance has no settings to share")
	errNoRepository    = errors.New("persistence is not configured")
)

func protocolParam(c *gin.Context, raw string) (types.Protocol, bool) {
	p := types.Protocol(raw)
	if _, ok := types.LookupProtocol(p); !ok {
		abort(c, http.StatusBadRequest, errUnknownProtocol)
		return "", false
	}
	return p, true
}

func (s *Server) listProtocols(c *gin.Context) {
	c.JSON(http.StatusOK, types.Protocols())
}

type defaultsResponse struct {
	Values form.Values `json:"values"`
	Source string      `json:"source"`
}

// defaults returns the form a new backtest starts from. Signed in callers get their
// last submitted settings back when persistence is configured.
func (s *Server) defaults(c *gin.Context) {
	protocol, ok := protocolParam(c, c.Param("protocol"))
	if !ok {
		return
	}
	if who := owner(c); who != "" && s.repo != nil {
		last, err := s.repo.GetLastSettings(c.Request.Context(), who, protocol)
		if err == nil {
			if v := form.FromRequest(last); v != nil {
				c.JSON(http.StatusOK, defaultsResponse{Values: *v, Source: "last"})
				return
			}
		}
	}
	c.JSON(http.StatusOK, defaultsResponse{Values: form.Default(protocol, s.now()), Source: "default"})
}

type parseResponse struct {
	Empty     bool                       `json:"empty"`
	Params    codec.Params               `json:"params"`
	Request   *types.RequestBackTestData `json:"request,omitempty"`
	Values    *form.Values               `json:"values,omitempty"`
	OpenModal bool                       `json:"openModal"`
}

func (s *Server) parseQuery(c *gin.Context) {
	query := c.Request.URL.Query()
	protocol, ok := protocolParam(c, query.Get("protocol"))
	if !ok {
		return
	}
	params := codec.ParseRequestData(query, protocol)
	resp := parseResponse{
		Empty:     params.Empty(),
		Params:    params,
		Values:    params.FormValues(),
		OpenModal: codec.WantsOpenModal(query),
	}
	if !params.Empty() {
		req := params.Request()
		resp.Request = &req
	}
	c.JSON(http.StatusOK, resp)
}

type stringifyRequest struct {
	Protocol types.Protocol            `json:"protocol" binding:"required"`
	Data     types.RequestBackTestData `json:"data"`
}

func (s *Server) stringify(c *gin.Context) {
	var body stringifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if _, ok := protocolParam(c, string(body.Protocol)); !ok {
		return
	}
	values := codec.StringifyRequestData(body.Data, body.Protocol)
	c.JSON(http.StatusOK, gin.H{"query": values.Encode(), "params": values})
}

func (s *Server) getShare(c *gin.Context) {
	if s.repo == nil {
		abort(c, http.StatusNotImplemented, errNoRepository)
		return
	}
	protocol, query, err := s.repo.GetShare(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocol": protocol, "query": query})
}

type createSessionRequest struct {
	Protocol types.Protocol `json:"protocol" binding:"required"`
	// Query is a shared backtest link's query string.
	Query string `json:"query"`
}

type sessionResponse struct {
	ID        string         `json:"id"`
	Protocol  types.Protocol `json:"protocol"`
	State     session.State  `json:"state"`
	OpenModal bool           `json:"openModal"`
	Values    *form.Values   `json:"values,omitempty"`
}

// createSession opens a session. A complete shared link from a signed in caller is
// submitted right away in the background; the session starts in testing.
func (s *Server) createSession(c *gin.Context) {
	var body createSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	protocol, ok := protocolParam(c, string(body.Protocol))
	if !ok {
		return
	}
	params := codec.DecodeQuery(body.Query, protocol)
	who := owner(c)
	autoSubmit := !params.Empty() && who != ""

	var inbound *types.RequestBackTestData
	if autoSubmit {
		req := params.Request()
		inbound = &req
	}
	entry := &sessionEntry{
		store:    s.sessions.Create(session.NewState(inbound)),
		protocol: protocol,
		auto:     s.engine.NewAutoSubmitter(),
	}
	s.addSession(entry)

	if autoSubmit {
		go func() {
			_, _, err := entry.auto.Run(s.ctx, entry.store, protocol, params, true)
			if err != nil {
				s.log.Warn("auto submit", zap.String("session", entry.store.ID), zap.Error(err))
			}
		}()
	}

	openModal := false
	if autoSubmit {
		if values, err := parseRawQuery(body.Query); err == nil {
			openModal = codec.WantsOpenModal(values)
		}
	}
	c.JSON(http.StatusCreated, sessionResponse{
		ID:        entry.store.ID,
		Protocol:  protocol,
		State:     entry.store.State(),
		OpenModal: openModal,
		Values:    params.FormValues(),
	})
}

func (s *Server) lookupSession(c *gin.Context) (*sessionEntry, bool) {
	e, ok := s.session(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, errNoSession)
	}
	return e, ok
}

func (s *Server) getSession(c *gin.Context) {
	e, ok := s.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: e.store.ID, Protocol: e.protocol, State: e.store.State()})
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.removeSession(c.Param("id")) {
		abort(c, http.StatusNotFound, errNoSession)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) dispatch(c *gin.Context) {
	e, ok := s.lookupSession(c)
	if !ok {
		return
	}
	var body []actionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	actions := make([]session.Action, 0, len(body))
	for _, a := range body {
		action, err := a.toAction()
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		actions = append(actions, action)
	}
	state := e.store.Dispatch(actions...)
	c.JSON(http.StatusOK, sessionResponse{ID: e.store.ID, Protocol: e.protocol, State: state})
}

type submitRequest struct {
	Values  form.Values `json:"values"`
	Account string      `json:"account" binding:"required"`
}

type submitResponse struct {
	Result *types.BackTestResultData `json:"result,omitempty"`
	State  session.State             `json:"state"`
	Error  string                    `json:"error,omitempty"`
}

func (s *Server) submit(c *gin.Context) {
	e, ok := s.lookupSession(c)
	if !ok {
		return
	}
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	result, err := s.engine.Submit(c.Request.Context(), e.store, e.protocol, body.Values, body.Account, owner(c))
	if err != nil {
		if errors.Is(err, form.ErrInvalidValues) {
			abort(c, statusFor(err), err)
			return
		}
		c.JSON(statusFor(err), submitResponse{State: e.store.State(), Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, submitResponse{Result: result, State: e.store.State()})
}

func (s *Server) testedInstance(c *gin.Context) (*sessionEntry, *session.Instance, bool) {
	e, ok := s.lookupSession(c)
	if !ok {
		return nil, nil, false
	}
	inst := e.store.State().Current()
	if inst == nil || inst.Status != session.StatusTested || inst.Result == nil || inst.Settings == nil {
		abort(c, http.StatusConflict, errNotTested)
		return nil, nil, false
	}
	return e, inst, true
}

func (s *Server) summary(c *gin.Context) {
	_, inst, ok := s.testedInstance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, engine.SingleSummary(*inst.Settings, *inst.Result))
}

func (s *Server) annotations(c *gin.Context) {
	_, inst, ok := s.testedInstance(c)
	if !ok {
		return
	}
	rec := &chart.Recorder{}
	if err := chart.PlotPositions(rec, inst.Result.SimulatorPositions); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type shareRequest struct {
	Sort *types.SortSpec `json:"sort"`
}

func (s *Server) share(c *gin.Context) {
	e, ok := s.lookupSession(c)
	if !ok {
		return
	}
	var body shareRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}
	inst := e.store.State().Current()
	if inst == nil || inst.Settings == nil {
		abort(c, http.StatusConflict, errNoSettings)
		return
	}
	ctx := c.Request.Context()
	id, shared, err := s.engine.Share(ctx, e.protocol, *inst.Settings, body.Sort)
	if err != nil {
		abort(c, statusFor(err), err)
		return
	}
	if s.repo != nil {
		if err := s.repo.SaveShare(ctx, id, e.protocol, shared); err != nil {
			s.log.Warn("save share", zap.String("share", id), zap.Error(err))
		}
	}
	query := codec.EncodeQuery(*inst.Settings, e.protocol)
	c.JSON(http.StatusOK, gin.H{"id": id, "query": query})
}

type createBatchRequest struct {
	Protocol types.Protocol `json:"protocol" binding:"required"`
	Values   form.Values    `json:"values"`
	Accounts []string       `json:"accounts"`
}

func (s *Server) createBatch(c *gin.Context) {
	var body createBatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	protocol, ok := protocolParam(c, string(body.Protocol))
	if !ok {
		return
	}
	entry := &batchEntry{batch: engine.NewBatch(), protocol: protocol}
	s.addBatch(entry)
	if err := s.engine.SubmitBatch(c.Request.Context(), entry.batch, protocol, body.Values, body.Accounts, owner(c)); err != nil {
		abort(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusCreated, entry.batch.Snapshot())
}

func (s *Server) lookupBatch(c *gin.Context) (*batchEntry, bool) {
	b, ok := s.batch(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, errNoBatch)
	}
	return b, ok
}

func (s *Server) getBatch(c *gin.Context) {
	b, ok := s.lookupBatch(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, b.batch.Snapshot())
}

// batchTable builds the sorted table for ?sort=&dir=.
func (s *Server) batchTable(c *gin.Context) (*engine.ResultTable, bool) {
	b, ok := s.lookupBatch(c)
	if !ok {
		return nil, false
	}
	table, err := s.engine.BatchTable(c.Request.Context(), b.protocol, b.batch.Snapshot())
	if err != nil {
		abort(c, statusFor(err), err)
		return nil, false
	}
	if column := c.Query("sort"); column != "" {
		dir := types.SortDirection(c.DefaultQuery("dir", string(types.SortDesc)))
		if err := table.SetSort(types.SortSpec{Column: column, Direction: dir}); err != nil {
			abort(c, statusFor(err), err)
			return nil, false
		}
	}
	return table, true
}

func (s *Server) batchRows(c *gin.Context) {
	table, ok := s.batchTable(c)
	if !ok {
		return
	}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		table.SetPage(page)
	}
	c.JSON(http.StatusOK, table.Page())
}

func (s *Server) batchReport(c *gin.Context) {
	table, ok := s.batchTable(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, engine.GenerateBatchReport(table.Rows()))
}

func (s *Server) exportBatch(c *gin.Context) {
	table, ok := s.batchTable(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", `attachment; filename="backtest-`+c.Param("id")+`.csv"`)
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	if err := engine.WriteTableCSV(c.Writer, table.Rows()); err != nil {
		s.log.Warn("export csv", zap.Error(err))
	}
}
