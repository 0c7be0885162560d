package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/api/http/handlers"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/report"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util/errorutil"
)

const (
	ticketID     = "7f1c2a9e-3b4d-4c5e-8f60-1a2b3c4d5e6f"
	unknownID    = "00000000-0000-4000-8000-000000000001"
	assigneeID   = "5d3e9c1b-2a4f-4b6e-9c8d-7e6f5a4b3c2d"
	attachmentID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type fakeTickets struct {
	lastFilter service.TicketListFilter
	created    service.TicketCreateInput
	uploaded   []byte
	panicOn    string
}

func (f *fakeTickets) CreateTicket(_ context.Context, p *domain.Principal, in service.TicketCreateInput) (*domain.Ticket, error) {
	f.created = in
	return &domain.Ticket{ID: ticketID, ExternalKey: "TCK-ABCDEF12", Title: in.Title, CreatedBy: p.UserID,
		Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityMedium}, nil
}

func (f *fakeTickets) ListTickets(_ context.Context, _ *domain.Principal, filter service.TicketListFilter) ([]domain.Ticket, error) {
	f.lastFilter = filter
	if f.panicOn == "list" {
		panic("boom")
	}
	return []domain.Ticket{{ID: ticketID}}, nil
}

func (f *fakeTickets) GetTicket(_ context.Context, _ *domain.Principal, id string) (*service.TicketDetails, error) {
	if id != ticketID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return &service.TicketDetails{Ticket: &domain.Ticket{ID: ticketID}}, nil
}

func (f *fakeTickets) UpdateStatus(_ context.Context, _ *domain.Principal, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	return &domain.Ticket{ID: id, Status: status}, nil
}

func (f *fakeTickets) AssignTicket(_ context.Context, _ *domain.Principal, id string, assignee *string) (*domain.Ticket, error) {
	return &domain.Ticket{ID: id, AssignedTo: assignee}, nil
}

func (f *fakeTickets) AddComment(_ context.Context, p *domain.Principal, id, body string) (*domain.TicketComment, error) {
	return &domain.TicketComment{ID: "c-1", TicketID: id, AuthorID: p.UserID, Body: body}, nil
}

func (f *fakeTickets) AddAttachment(_ context.Context, p *domain.Principal, id string, up service.AttachmentUpload) (*domain.Attachment, error) {
	data, err := io.ReadAll(up.Content)
	if err != nil {
		return nil, err
	}
	f.uploaded = data
	return &domain.Attachment{ID: "a-1", TicketID: id, FileName: up.FileName, MimeType: up.MimeType,
		SizeBytes: int64(len(data)), UploadedBy: p.UserID}, nil
}

func (f *fakeTickets) OpenAttachment(_ context.Context, _ *domain.Principal, _, attachmentID string) (*domain.Attachment, io.ReadCloser, error) {
	body := "hello file"
	return &domain.Attachment{ID: attachmentID, FileName: `re"port.txt`, MimeType: "text/plain", SizeBytes: int64(len(body))},
		io.NopCloser(strings.NewReader(body)), nil
}

type fakeReports struct {
	lastQuery report.Query
}

func (f *fakeReports) Generate(_ context.Context, q report.Query) (report.Result, error) {
	f.lastQuery = q
	return report.Result{GroupBy: q.GroupBy, Total: 2}, nil
}

func (f *fakeReports) Summary(context.Context) (report.Result, error) {
	return report.Result{GroupBy: report.GroupByMonth, Total: 5}, nil
}

func (f *fakeReports) ExportCSV(_ context.Context, q report.Query, w io.Writer) error {
	f.lastQuery = q
	return report.WriteCSV(w, report.Result{GroupBy: q.GroupBy})
}

func (f *fakeReports) ExportPDF(context.Context, report.Query, io.Writer) error {
	return errors.New("renderer exploded")
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app     *fiber.App
	tickets *fakeTickets
	reports *fakeReports
	tokens  *auth.TokenVerifier
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	tokens := auth.NewTokenVerifier("test-secret", "", "admin", 5)

	s := &testServer{tickets: &fakeTickets{}, reports: &fakeReports{}, tokens: tokens}
	s.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	RegisterMiddlewares(s.app, logger, metrics, 0)
	RegisterRoutes(s.app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-desk", "test", deps),
		Tickets:        handlers.NewTicketsHandler(s.tickets, 16),
		Reports:        handlers.NewReportsHandler(s.reports),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, nil),
		Gatherer:       reg,
	})
	return s
}

func (s *testServer) token(t *testing.T, role domain.Role) string {
	t.Helper()
	token, _, err := s.tokens.Issue("user-"+string(role), string(role)+"@example.com", role)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(data, &body), string(data))
	return body
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{"postgres": pinger{}, "redis": pinger{err: errors.New("connection refused")}})

	resp, _ := s.do(t, http.MethodGet, "/health/live", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	resp, data := s.do(t, http.MethodGet, "/health/ready", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", body.Error.Code)
	assert.Equal(t, "ok", body.Error.Details["postgres"])
	assert.Equal(t, "connection refused", body.Error.Details["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/health/live", "", nil, "")

	resp, data := s.do(t, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `ticketdesk_http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	resp, data := s.do(t, http.MethodGet, "/tickets", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, data).Error.Code)

	resp, data = s.do(t, http.MethodGet, "/auth/me", s.token(t, domain.RoleAdmin), nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"user_id":"user-admin","email":"admin@example.com","role":"admin","is_admin":true}}`, string(data))
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.token(t, domain.RoleUser)

	resp, data := s.do(t, http.MethodPost, "/tickets", token, strings.NewReader(`{"priority":"urgent"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Equal(t, "required", body.Error.Details["title"])
	assert.Equal(t, "oneof=low medium high", body.Error.Details["priority"])

	resp, _ = s.do(t, http.MethodPost, "/tickets", token, strings.NewReader(`{not json`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = s.do(t, http.MethodPost, "/tickets", token,
		strings.NewReader(`{"title":"Scanner offline","type":"hardware","station":"North"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(data), `"external_key":"TCK-ABCDEF12"`)
	assert.Equal(t, "North", s.tickets.created.Station)
}

func TestTicketRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, domain.RoleUser)
	admin := s.token(t, domain.RoleAdmin)

	resp, data := s.do(t, http.MethodGet, "/tickets/"+unknownID, user, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, data).Error.Code)

	resp, data = s.do(t, http.MethodGet, "/tickets/"+ticketID, user, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, _ = s.do(t, http.MethodPatch, "/tickets/"+ticketID+"/status", user, strings.NewReader(`{"status":"resolved"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = s.do(t, http.MethodPatch, "/tickets/"+ticketID+"/status", user, strings.NewReader(`{"status":"closed"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"status":"closed"`)

	resp, data = s.do(t, http.MethodPatch, "/tickets/"+ticketID+"/assignee", user, strings.NewReader(`{"assignee_id":"u2"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeError(t, data).Error.Code)

	resp, data = s.do(t, http.MethodPatch, "/tickets/"+ticketID+"/assignee", admin, strings.NewReader(`{"assignee_id":"u2"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "uuid", decodeError(t, data).Error.Details["assignee_id"])

	resp, data = s.do(t, http.MethodPatch, "/tickets/"+ticketID+"/assignee", admin, strings.NewReader(`{"assignee_id":"`+assigneeID+`"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"assigned_to":"`+assigneeID+`"`)

	resp, data = s.do(t, http.MethodPost, "/tickets/"+ticketID+"/comments", user, strings.NewReader(`{"body":"any update?"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, string(data), `"author_id":"user-user"`)
}

func TestNonUUIDIdentifiers(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, domain.RoleUser)
	admin := s.token(t, domain.RoleAdmin)

	for _, path := range []string{
		"/tickets/missing",
		"/tickets/42/attachments/" + attachmentID,
		"/tickets/" + ticketID + "/attachments/a-9",
	} {
		resp, data := s.do(t, http.MethodGet, path, user, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "NOT_FOUND", decodeError(t, data).Error.Code, path)
	}

	resp, data := s.do(t, http.MethodPatch, "/tickets/bogus/status", user, strings.NewReader(`{"status":"closed"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, data).Error.Code)

	resp, _ = s.do(t, http.MethodGet, "/tickets?assigned_to=bob", user, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, s.tickets.lastFilter.AssignedTo)

	resp, _ = s.do(t, http.MethodGet, "/tickets?assigned_to="+strings.ToUpper(assigneeID), user, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, s.tickets.lastFilter.AssignedTo)
	assert.Equal(t, assigneeID, *s.tickets.lastFilter.AssignedTo)

	resp, _ = s.do(t, http.MethodGet, "/reports?assignedUser=bob&groupBy=day", admin, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, s.reports.lastQuery.AssignedUser)
	assert.Equal(t, report.GroupByDay, s.reports.lastQuery.GroupBy)
}

func TestAttachmentRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, domain.RoleUser)

	upload := func(content string) (*http.Response, []byte) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "notes.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return s.do(t, http.MethodPost, "/tickets/"+ticketID+"/attachments", user, &buf, w.FormDataContentType())
	}

	resp, data := upload("small")
	assert.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	assert.Equal(t, "small", string(s.tickets.uploaded))
	assert.Contains(t, string(data), `"file_name":"notes.txt"`)

	resp, data = upload("this body is longer than sixteen bytes")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, data).Error.Code)

	resp, _ = s.do(t, http.MethodPost, "/tickets/"+ticketID+"/attachments", user, strings.NewReader(`{}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = s.do(t, http.MethodGet, "/tickets/"+ticketID+"/attachments/"+attachmentID, user, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello file", string(data))
	assert.Equal(t, "text/plain", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, `attachment; filename="re_port.txt"`, resp.Header.Get(fiber.HeaderContentDisposition))
}

func TestReportRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, domain.RoleUser)
	admin := s.token(t, domain.RoleAdmin)

	resp, data := s.do(t, http.MethodGet, "/reports", user, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeError(t, data).Error.Code)

	resp, data = s.do(t, http.MethodGet, "/reports?groupBy=week&endDate=2024-01-31&status=closed", admin, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"groupBy":"week"`)
	require.NotNil(t, s.reports.lastQuery.EndDate)
	assert.Equal(t, "2024-01-31T23:59:59Z", s.reports.lastQuery.EndDate.Format("2006-01-02T15:04:05Z07:00"))

	resp, data = s.do(t, http.MethodGet, "/reports/summary", admin, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"total":5`)

	resp, data = s.do(t, http.MethodGet, "/reports/export.csv?groupBy=day", admin, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get(fiber.HeaderContentType))
	assert.True(t, strings.HasPrefix(string(data), "Section,Label,Value\n"))
	assert.Contains(t, string(data), "summary,group_by,day\n")

	resp, data = s.do(t, http.MethodGet, "/reports/export.pdf", admin, nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "exploded")
}

func TestPanicsAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	s.tickets.panicOn = "list"

	resp, data := s.do(t, http.MethodGet, "/tickets", s.token(t, domain.RoleUser), nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, data).Error.Code)

	resp, data = s.do(t, http.MethodGet, "/nowhere", "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, data).Error.Code)
}
