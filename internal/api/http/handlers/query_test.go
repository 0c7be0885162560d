package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/report"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in       string
		endOfDay bool
		want     *time.Time
	}{
		{in: "", want: nil},
		{in: "yesterday", want: nil},
		{in: "2024-02-30", want: nil},
		{in: "2024-03-05", want: ptrTime(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))},
		{in: "2024-03-05", endOfDay: true, want: ptrTime(time.Date(2024, 3, 5, 23, 59, 59, 999999999, time.UTC))},
		{in: "2024-03-05T10:00:00+02:00", endOfDay: true, want: ptrTime(time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC))},
	}
	for _, tc := range cases {
		got := parseDate(tc.in, tc.endOfDay)
		if tc.want == nil {
			assert.Nil(t, got, tc.in)
			continue
		}
		require.NotNil(t, got, tc.in)
		assert.True(t, tc.want.Equal(*got), "%s: got %s", tc.in, got)
	}
}

func TestParseReportQuery(t *testing.T) {
	app := fiber.New()
	var got report.Query
	app.Get("/", func(c *fiber.Ctx) error {
		got = parseReportQuery(c)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/?startDate=2024-01-01&endDate=bogus&status=closed&type=+network+&category=&assignedUser=5D3E9C1B-2A4F-4B6E-9C8D-7E6F5A4B3C2D&groupBy=Week", nil))
	require.NoError(t, err)

	require.NotNil(t, got.StartDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *got.StartDate)
	assert.Nil(t, got.EndDate)
	require.NotNil(t, got.Status)
	assert.Equal(t, domain.TicketStatusClosed, *got.Status)
	assert.Equal(t, "network", *got.Type)
	assert.Nil(t, got.Category)
	require.NotNil(t, got.AssignedUser)
	assert.Equal(t, "5d3e9c1b-2a4f-4b6e-9c8d-7e6f5a4b3c2d", *got.AssignedUser)
	assert.Equal(t, report.GroupByWeek, got.GroupBy)

	_, err = app.Test(httptest.NewRequest("GET", "/?groupBy=quarter", nil))
	require.NoError(t, err)
	assert.Equal(t, report.GroupByMonth, got.GroupBy)
}

func TestPagination(t *testing.T) {
	app := fiber.New()
	var limit, offset int
	app.Get("/", func(c *fiber.Ctx) error {
		limit, offset = pagination(c)
		return nil
	})

	for url, want := range map[string][2]int{
		"/":                        {20, 0},
		"/?page=3&page_size=10":    {10, 20},
		"/?page=-1&page_size=500":  {100, 0},
		"/?page=abc&page_size=xyz": {20, 0},
	} {
		_, err := app.Test(httptest.NewRequest("GET", url, nil))
		require.NoError(t, err)
		assert.Equal(t, want, [2]int{limit, offset}, url)
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func TestOptionalUUID(t *testing.T) {
	assert.Nil(t, optionalUUID(""))
	assert.Nil(t, optionalUUID("bob"))
	assert.Nil(t, optionalUUID("1234"))
	got := optionalUUID(" 5D3E9C1B-2A4F-4B6E-9C8D-7E6F5A4B3C2D ")
	require.NotNil(t, got)
	assert.Equal(t, "5d3e9c1b-2a4f-4b6e-9c8d-7e6f5a4b3c2d", *got)
}
