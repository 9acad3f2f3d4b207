package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recentVisitLimit = 10

// VisitLog is one share visit joined with the share and its issuer
type VisitLog struct {
	ID         uint      `json:"id"`
	ShareID    uint      `json:"share_id"`
	Token      string    `json:"token"`
	UserID     uint      `json:"user_id"`
	Username   string    `json:"username"`
	UserName   string    `json:"user_name"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	AccessTime time.Time `json:"access_time"`
	PalletType string    `json:"pallet_type"`
}

type DailyVisits struct {
	Date   string `json:"date"`
	Visits int    `json:"visits"`
}

type RecentVisit struct {
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	AccessTime time.Time `json:"access_time"`
}

type ShareInfo struct {
	ID         uint   `json:"id"`
	Token      string `json:"token"`
	ShareType  string `json:"share_type"`
	PalletType string `json:"pallet_type"`
}

// ClientAnalysis summarizes the visitors of one share
type ClientAnalysis struct {
	ShareInfo      ShareInfo      `json:"share_info"`
	TotalVisits    int            `json:"total_visits"`
	UniqueVisitors int            `json:"unique_visitors"`
	Devices        map[string]int `json:"devices"`
	DailyStats     []DailyVisits  `json:"daily_stats"`
	Logs           []RecentVisit  `json:"logs"`
}

// AccessLogs lists share visits across all shares
func (h *Handler) AccessLogs(c echo.Context) error {
	log := logger.FromContext(c)
	defer prometheus.TrackDBOperation("query")(time.Now())

	start, end, ok := timeRange(c)
	if !ok {
		return response.Fail(c, http.StatusBadRequest, "start_time and end_time must be ISO8601 timestamps")
	}
	page := service.NewPage(queryInt(c, "page", 1), queryInt(c, "page_size", 20), 1)

	query := h.db.WithContext(c.Request().Context()).Table("customer_logs AS cl").
		Joins("JOIN pallet_shares ps ON ps.id = cl.share_id").
		Joins("JOIN users u ON u.id = ps.user_id")
	query = visitsBetween(query, start, end)
	if userID := queryUint(c, "user_id"); userID != 0 {
		query = query.Where("ps.user_id = ?", userID)
	}
	if token := strings.TrimSpace(c.QueryParam("token")); token != "" {
		query = query.Where("ps.token = ?", token)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		log.Error("Failed to count access logs", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	logs := []VisitLog{}
	err := query.Session(&gorm.Session{}).
		Select("cl.id, cl.share_id, ps.token, ps.user_id, u.username, u.name AS user_name, " +
			"cl.ip_address, cl.user_agent, cl.access_time, ps.pallet_type").
		Order("cl.access_time DESC").Order("cl.id DESC").
		Limit(page.Size).Offset(page.Offset()).
		Scan(&logs).Error
	if err != nil {
		log.Error("Failed to list access logs", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}

	return response.OK(c, "ok", listResult{Items: logs, Meta: page.Meta(total)})
}

// ClientAnalysis reports visit statistics of a share to its issuer or an admin
func (h *Handler) ClientAnalysis(c echo.Context) error {
	log := logger.FromContext(c)
	caller := middleware.GetCaller(c)

	start, end, ok := timeRange(c)
	if !ok {
		return response.Fail(c, http.StatusBadRequest, "start_time and end_time must be ISO8601 timestamps")
	}

	db := h.db.WithContext(c.Request().Context())
	shareQuery := db.Model(&model.PalletShare{})
	if token := strings.TrimSpace(c.QueryParam("token")); token != "" {
		shareQuery = shareQuery.Where("token = ?", token)
	} else if id := queryUint(c, "share_id"); id != 0 {
		shareQuery = shareQuery.Where("id = ?", id)
	} else {
		return response.Fail(c, http.StatusBadRequest, "share_id or token is required")
	}

	var share model.PalletShare
	if err := shareQuery.First(&share).Error; err != nil {
		if isNotFound(err) {
			return response.Fail(c, http.StatusNotFound, "share not found")
		}
		log.Error("Failed to load share", zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	if !caller.IsAdmin && share.UserID != caller.UserID {
		log.Warn("Client analysis of a foreign share", zap.Uint("share_id", share.ID))
		return response.Fail(c, http.StatusForbidden, "no permission for this share")
	}

	visits := func() *gorm.DB {
		return visitsBetween(db.Table("customer_logs AS cl").Where("cl.share_id = ?", share.ID), start, end)
	}
	analysis, err := analyzeVisits(visits)
	if err != nil {
		log.Error("Failed to analyze share visits", zap.Uint("share_id", share.ID), zap.Error(err))
		return response.Fail(c, http.StatusInternalServerError, "internal server error")
	}
	analysis.ShareInfo = ShareInfo{
		ID:         share.ID,
		Token:      share.Token,
		ShareType:  share.ShareType,
		PalletType: share.PalletType,
	}

	log.Info("Client analysis served",
		zap.Uint("share_id", share.ID),
		zap.Int("total_visits", analysis.TotalVisits),
		zap.Int("unique_visitors", analysis.UniqueVisitors))
	return response.OK(c, "ok", analysis)
}

var mobileMarkers = []string{"Mobile", "Android", "iPhone", "iPad"}

type visitTotals struct {
	TotalVisits    int
	UniqueVisitors int
}

type dayCount struct {
	VisitDate string
	Visits    int
}

type deviceCount struct {
	DeviceType string
	Visits     int
}

// analyzeVisits aggregates the visits selected by visits in the database and
// loads only the most recent ones
func analyzeVisits(visits func() *gorm.DB) (*ClientAnalysis, error) {
	a := &ClientAnalysis{
		Devices:    map[string]int{},
		DailyStats: []DailyVisits{},
		Logs:       []RecentVisit{},
	}

	var totals visitTotals
	err := visits().
		Select("COUNT(*) AS total_visits, COUNT(DISTINCT cl.ip_address) AS unique_visitors").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	a.TotalVisits = totals.TotalVisits
	a.UniqueVisitors = totals.UniqueVisitors
	if a.TotalVisits == 0 {
		return a, nil
	}

	var days []dayCount
	q := visits()
	err = q.Select(visitDay(q.Dialector.Name()) + " AS visit_date, COUNT(*) AS visits").
		Group("visit_date").
		Order("visit_date DESC").
		Scan(&days).Error
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		a.DailyStats = append(a.DailyStats, DailyVisits{Date: d.VisitDate, Visits: d.Visits})
	}

	device, args := deviceCase()
	var devices []deviceCount
	err = visits().
		Select(device+" AS device_type, COUNT(*) AS visits", args...).
		Group("device_type").
		Scan(&devices).Error
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		a.Devices[d.DeviceType] = d.Visits
	}

	err = visits().
		Select("cl.ip_address, cl.user_agent, cl.access_time").
		Order("cl.access_time DESC").Order("cl.id DESC").
		Limit(recentVisitLimit).
		Scan(&a.Logs).Error
	if err != nil {
		return nil, err
	}
	return a, nil
}

// visitDay renders access_time as a UTC calendar day
func visitDay(dialect string) string {
	if dialect == "postgres" {
		return "TO_CHAR(cl.access_time AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "COALESCE(strftime('%Y-%m-%d', cl.access_time), substr(cl.access_time, 1, 10))"
}

// deviceCase classifies user agents as mobile or desktop
func deviceCase() (string, []interface{}) {
	conds := make([]string, 0, len(mobileMarkers))
	args := make([]interface{}, 0, len(mobileMarkers))
	for _, m := range mobileMarkers {
		conds = append(conds, "cl.user_agent LIKE ?")
		args = append(args, "%"+m+"%")
	}
	return "CASE WHEN " + strings.Join(conds, " OR ") + " THEN 'mobile' ELSE 'desktop' END", args
}

// timeRange parses the optional start_time and end_time query parameters
func timeRange(c echo.Context) (start, end *time.Time, ok bool) {
	parse := func(name string) (*time.Time, bool) {
		v := strings.TrimSpace(c.QueryParam(name))
		if v == "" {
			return nil, true
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return &t, true
			}
		}
		return nil, false
	}
	if start, ok = parse("start_time"); !ok {
		return nil, nil, false
	}
	if end, ok = parse("end_time"); !ok {
		return nil, nil, false
	}
	return start, end, true
}

func visitsBetween(query *gorm.DB, start, end *time.Time) *gorm.DB {
	if start != nil {
		query = query.Where("cl.access_time >= ?", *start)
	}
	if end != nil {
		query = query.Where("cl.access_time <= ?", *end)
	}
	return query
}
