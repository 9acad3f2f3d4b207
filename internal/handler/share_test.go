package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/suteetoe/pallet-service/internal/handler"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
)

func (s *HandlerSuite) visit(token, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/pallet/share/"+token, nil)
	req.Header.Set("User-Agent", userAgent)
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createShare(u *model.User) service.ShareView {
	var view service.ShareView
	s.decode(s.do(http.MethodPost, "/api/pallet/share", s.token(u), obj{}), http.StatusCreated, &view)
	return view
}

func (s *HandlerSuite) TestShareLink() {
	t := s.T()
	own := testutil.CreateProduct(t, s.DB, "Seller A Pallet", visibility.Seller(s.SellerA.ID))
	testutil.CreateProduct(t, s.DB, "Seller B Pallet", visibility.Seller(s.SellerB.ID))
	testutil.CreateProduct(t, s.DB, "Company Pallet", visibility.Company())

	view := s.createShare(s.SellerA)
	s.Equal(visibility.OwnerSeller, view.PalletType)
	s.Equal("https://pallet.example.com/share/"+view.Token, view.ShareURL)

	var catalog service.SharedCatalog
	s.decode(s.visit(view.Token, "Mozilla/5.0 (iPhone)"), http.StatusOK, &catalog)
	s.Equal(visibility.OwnerSeller, catalog.PalletType)
	s.Equal(s.SellerA.ID, catalog.SellerInfo.ID)
	s.Equal([]uint{own.ID}, testutil.ProductIDs(catalog.Items))

	var share model.PalletShare
	s.Require().NoError(s.DB.First(&share, view.ID).Error)
	s.EqualValues(1, share.AccessCount)
	s.NotNil(share.LastAccessed)

	s.decode(s.visit("no-such-token", "curl"), http.StatusNotFound, nil)

	company := s.createShare(s.Admin)
	s.decode(s.visit(company.Token, "curl"), http.StatusOK, &catalog)
	s.Equal(visibility.OwnerCompany, catalog.PalletType)
	s.Len(catalog.Items, 1)
}

func (s *HandlerSuite) TestShareQRCodeAndHistory() {
	view := s.createShare(s.SellerA)
	tokenA := s.token(s.SellerA)

	var qr service.QRCodeResult
	s.decode(s.do(http.MethodPost, "/api/pallet/share/qrcode", tokenA, obj{"token": view.Token, "size": 5000}),
		http.StatusOK, &qr)
	s.True(strings.HasPrefix(qr.QRCodeURL, "/uploads/qrcode/"+view.Token+"_"))
	s.True(s.Files.Exists(qr.QRCodeURL))

	s.decode(s.do(http.MethodPost, "/api/pallet/share/qrcode", s.token(s.SellerB), obj{"token": view.Token}),
		http.StatusForbidden, nil)
	s.decode(s.do(http.MethodPost, "/api/pallet/share/qrcode", tokenA, obj{}), http.StatusBadRequest, nil)

	s.createShare(s.SellerA)
	var history page[service.ShareView]
	s.decode(s.do(http.MethodGet, "/api/pallet/share/history", tokenA, nil), http.StatusOK, &history)
	s.Len(history.Items, 2)
	s.decode(s.do(http.MethodGet, "/api/pallet/share/history", s.token(s.SellerB), nil), http.StatusOK, &history)
	s.Empty(history.Items)
}

func (s *HandlerSuite) TestClientAnalysis() {
	view := s.createShare(s.SellerA)
	s.decode(s.visit(view.Token, "Mozilla/5.0 (Linux; Android 14) Mobile"), http.StatusOK, nil)
	s.decode(s.visit(view.Token, "Mozilla/5.0 (Windows NT 10.0)"), http.StatusOK, nil)

	var analysis handler.ClientAnalysis
	s.decode(s.do(http.MethodGet, "/api/pallet/stats/client_analysis?share_id="+itoa(view.ID), s.token(s.SellerA), nil),
		http.StatusOK, &analysis)
	s.Equal(2, analysis.TotalVisits)
	s.Equal(1, analysis.UniqueVisitors)
	s.Equal(map[string]int{"mobile": 1, "desktop": 1}, analysis.Devices)
	s.Len(analysis.Logs, 2)
	s.Require().Len(analysis.DailyStats, 1)
	s.Equal(2, analysis.DailyStats[0].Visits)

	s.decode(s.do(http.MethodGet, "/api/pallet/stats/client_analysis?token="+view.Token, s.token(s.Admin), nil),
		http.StatusOK, nil)
	s.decode(s.do(http.MethodGet, "/api/pallet/stats/client_analysis?token="+view.Token, s.token(s.SellerB), nil),
		http.StatusForbidden, nil)
	s.decode(s.do(http.MethodGet, "/api/pallet/stats/client_analysis", s.token(s.SellerA), nil),
		http.StatusBadRequest, nil)
	s.decode(s.do(http.MethodGet, "/api/pallet/stats/client_analysis?share_id="+itoa(view.ID)+"&start_time=yesterday",
		s.token(s.SellerA), nil), http.StatusBadRequest, nil)
}

func (s *HandlerSuite) TestAccessLogs() {
	view := s.createShare(s.SellerA)
	s.decode(s.visit(view.Token, "curl"), http.StatusOK, nil)
	other := s.createShare(s.SellerB)
	s.decode(s.visit(other.Token, "curl"), http.StatusOK, nil)

	var logs page[handler.VisitLog]
	s.decode(s.do(http.MethodGet, "/api/pallet/stats/access_logs", s.token(s.Admin), nil), http.StatusOK, &logs)
	s.Len(logs.Items, 2)

	s.decode(s.do(http.MethodGet, "/api/pallet/stats/access_logs?user_id="+itoa(s.SellerA.ID), s.token(s.Admin), nil),
		http.StatusOK, &logs)
	s.Require().Len(logs.Items, 1)
	s.Equal("seller_a", logs.Items[0].Username)
	s.Equal(view.Token, logs.Items[0].Token)

	s.decode(s.do(http.MethodGet, "/api/pallet/stats/access_logs", s.token(s.SellerA), nil), http.StatusForbidden, nil)
}
