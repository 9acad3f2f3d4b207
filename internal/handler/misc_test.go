package handler_test

import (
	"net/http"

	"github.com/suteetoe/pallet-service/internal/handler"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
)

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health?check=db", "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"healthy","service":"pallet-service","database":"ok"}`, rec.Body.String())
}

func (s *HandlerSuite) TestUnknownRouteUsesEnvelope() {
	s.decode(s.do(http.MethodGet, "/nowhere", "", nil), http.StatusNotFound, nil)
}

func (s *HandlerSuite) TestStaticPages() {
	var page model.StaticPage
	s.decode(s.do(http.MethodGet, "/api/content/logistics", "", nil), http.StatusOK, &page)
	s.Empty(page.Content)

	s.decode(s.do(http.MethodPost, "/api/content/logistics", s.token(s.SellerA), obj{"content": "x"}),
		http.StatusForbidden, nil)
	s.decode(s.do(http.MethodPost, "/api/content/logistics", s.token(s.Admin), obj{"content": "<p>v1</p>"}),
		http.StatusOK, &page)
	s.decode(s.do(http.MethodPost, "/api/content/logistics", s.token(s.Admin), obj{"content": "<p>v2</p>"}),
		http.StatusOK, &page)

	s.decode(s.do(http.MethodGet, "/api/content/logistics", "", nil), http.StatusOK, &page)
	s.Equal("<p>v2</p>", page.Content)

	s.decode(s.do(http.MethodGet, "/api/content/about-us", "", nil), http.StatusBadRequest, nil)
}

func (s *HandlerSuite) TestDashboard() {
	t := s.T()
	testutil.CreateProduct(t, s.DB, "Company", visibility.Company())
	mine := testutil.CreateProduct(t, s.DB, "Mine", visibility.Seller(s.SellerA.ID))
	testutil.CreateProduct(t, s.DB, "Theirs", visibility.Seller(s.SellerB.ID))
	testutil.CreateBrand(t, s.DB, "Acme")

	s.decode(s.do(http.MethodPost, "/api/pallet/products/"+itoa(mine.ID)+"/recycle", s.token(s.SellerA),
		obj{"confirm": true}), http.StatusOK, nil)

	var seller handler.Overview
	s.decode(s.do(http.MethodGet, "/api/pallet/dashboard/overview", s.token(s.SellerA), nil), http.StatusOK, &seller)
	s.Zero(seller.ProductStats.Total)
	s.EqualValues(1, seller.ProductStats.Recycled)
	s.NotNil(seller.ProductStats.LastUpdated)
	s.Nil(seller.UserStats)

	var admin handler.Overview
	s.decode(s.do(http.MethodGet, "/api/pallet/dashboard/overview", s.token(s.Admin), nil), http.StatusOK, &admin)
	s.EqualValues(2, admin.ProductStats.Total)
	s.EqualValues(1, admin.ProductStats.Recycled)
	s.Require().NotNil(admin.BrandStats)
	s.EqualValues(1, admin.BrandStats.Total)
	s.Require().NotNil(admin.UserStats)
	s.EqualValues(2, admin.UserStats.Active)
	s.EqualValues(1, admin.AdminStats.Total)

	var profile handler.DashboardProfile
	s.decode(s.do(http.MethodGet, "/api/pallet/dashboard/profile", s.token(s.Admin), nil), http.StatusOK, &profile)
	s.Equal("ADMIN", profile.UserType)

	var perms map[string]bool
	s.decode(s.do(http.MethodGet, "/api/pallet/dashboard/permissions", s.token(s.SellerA), nil), http.StatusOK, &perms)
	s.False(perms["brand_manage"])
	s.True(perms["product_manage"])

	var one map[string]bool
	s.decode(s.do(http.MethodGet, "/api/pallet/dashboard/permissions?module=user_manage", s.token(s.Admin), nil),
		http.StatusOK, &one)
	s.Equal(map[string]bool{"user_manage": true}, one)

	var stamps map[string]*string
	s.decode(s.do(http.MethodGet, "/api/pallet/dashboard/refresh", s.token(s.SellerA), nil), http.StatusOK, &stamps)
	s.NotNil(stamps["products_updated_at"])
	s.NotNil(stamps["brands_updated_at"])
}
