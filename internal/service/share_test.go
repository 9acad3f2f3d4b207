package service_test

import (
	"errors"
	"regexp"
	"strings"

	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"gorm.io/gorm"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{32}$`)

func (s *ServiceSuite) TestCreateShare() {
	share, err := s.Shares.Create(s.Ctx, s.SellerA.ID, "full")
	s.Require().NoError(err)
	s.Regexp(hexToken, share.Token)
	s.Equal(model.ShareTypeFull, share.ShareType)
	s.Equal(visibility.OwnerSeller, share.PalletType)

	share, err = s.Shares.Create(s.Ctx, s.Admin.ID, model.ShareTypeFull)
	s.Require().NoError(err)
	s.Equal(visibility.OwnerCompany, share.PalletType)

	_, err = s.Shares.Create(s.Ctx, s.SellerA.ID, "PARTIAL")
	s.ErrorIs(err, service.ErrInvalid)

	_, err = s.Shares.Create(s.Ctx, 9999, model.ShareTypeFull)
	s.ErrorIs(err, service.ErrNotFound)
}

func (s *ServiceSuite) TestResolveSellerShareShowsOnlyIssuerProducts() {
	own := testutil.CreateProduct(s.T(), s.DB, "Own", visibility.Seller(s.SellerA.ID))
	testutil.CreatePriceTier(s.T(), s.DB, own.ID, "b", "2.00")
	testutil.CreatePriceTier(s.T(), s.DB, own.ID, "a", "1.00")
	testutil.CreateProduct(s.T(), s.DB, "Company", visibility.Company())
	testutil.CreateProduct(s.T(), s.DB, "Foreign", visibility.Seller(s.SellerB.ID))
	gone := testutil.CreateProduct(s.T(), s.DB, "Gone", visibility.Seller(s.SellerA.ID))
	_, err := s.Recycle.Recycle(s.Ctx, s.caller(s.SellerA), gone.ID, true)
	s.Require().NoError(err)

	share, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)

	catalog, err := s.Shares.Resolve(s.Ctx, share.Token, service.ShareQuery{}, service.ClientInfo{IP: "10.0.0.1", UserAgent: "iPhone"})
	s.Require().NoError(err)
	s.Equal([]uint{own.ID}, testutil.ProductIDs(catalog.Items))
	s.Equal(int64(1), catalog.Meta.TotalCount)
	s.Equal(s.SellerA.ID, catalog.SellerInfo.ID)
	s.Require().Len(catalog.Items[0].PriceTiers, 2)
	s.Equal("a", catalog.Items[0].PriceTiers[0].Quantity)
}

func (s *ServiceSuite) TestResolveCompanyShare() {
	company := testutil.CreateProduct(s.T(), s.DB, "Company Pallet", visibility.Company())
	testutil.CreateProduct(s.T(), s.DB, "Seller", visibility.Seller(s.SellerA.ID))
	testutil.CreateAttachment(s.T(), s.DB, s.Files, model.EntityProduct, company.ID)

	share, err := s.Shares.Create(s.Ctx, s.Admin.ID, model.ShareTypeFull)
	s.Require().NoError(err)

	catalog, err := s.Shares.Resolve(s.Ctx, share.Token, service.ShareQuery{}, service.ClientInfo{})
	s.Require().NoError(err)
	s.Require().Len(catalog.Items, 1)
	s.Equal(company.ID, catalog.Items[0].ID)
	s.Len(catalog.Items[0].Attachments, 1)

	catalog, err = s.Shares.Resolve(s.Ctx, share.Token, service.ShareQuery{Keyword: "nothing"}, service.ClientInfo{})
	s.Require().NoError(err)
	s.Empty(catalog.Items)
}

func (s *ServiceSuite) TestResolveCountsVisits() {
	share, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		_, err := s.Shares.Resolve(s.Ctx, share.Token, service.ShareQuery{}, service.ClientInfo{IP: "1.2.3.4"})
		s.Require().NoError(err)
	}

	var stored model.PalletShare
	s.Require().NoError(s.DB.First(&stored, share.ID).Error)
	s.Equal(int64(3), stored.AccessCount)
	s.NotNil(stored.LastAccessed)
	s.Equal(int64(3), s.countRows(&model.CustomerLog{}, "share_id = ?", share.ID))
}

func (s *ServiceSuite) TestResolveServesCatalogWhenVisitTrackingFails() {
	own := testutil.CreateProduct(s.T(), s.DB, "Own", visibility.Seller(s.SellerA.ID))
	share, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)

	trackingDown := func(db *gorm.DB) {
		if db.Statement.Table == "pallet_shares" || db.Statement.Table == "customer_logs" {
			db.AddError(errors.New("tracking unavailable"))
		}
	}
	s.Require().NoError(s.DB.Callback().Update().Before("gorm:update").Register("test:fail_share_count", trackingDown))
	s.Require().NoError(s.DB.Callback().Create().Before("gorm:create").Register("test:fail_visit_log", trackingDown))

	catalog, err := s.Shares.Resolve(s.Ctx, share.Token, service.ShareQuery{}, service.ClientInfo{IP: "1.2.3.4"})
	s.Require().NoError(err)
	s.Equal([]uint{own.ID}, testutil.ProductIDs(catalog.Items))

	var stored model.PalletShare
	s.Require().NoError(s.DB.First(&stored, share.ID).Error)
	s.Zero(stored.AccessCount)
	s.Zero(s.countRows(&model.CustomerLog{}, "share_id = ?", share.ID))
}

func (s *ServiceSuite) TestResolveKeepsPalletTypeAfterPromotion() {
	own := testutil.CreateProduct(s.T(), s.DB, "Own", visibility.Seller(s.SellerA.ID))
	testutil.CreateProduct(s.T(), s.DB, "Company", visibility.Company())

	share, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)
	s.Require().NoError(s.DB.Model(&model.User{}).Where("id = ?", s.SellerA.ID).Update("is_admin", true).Error)

	catalog, err := s.Shares.Resolve(s.Ctx, share.Token, service.ShareQuery{}, service.ClientInfo{})
	s.Require().NoError(err)
	s.Equal(visibility.OwnerSeller, catalog.PalletType)
	s.Equal([]uint{own.ID}, testutil.ProductIDs(catalog.Items))
}

func (s *ServiceSuite) TestResolveUnknownToken() {
	_, err := s.Shares.Resolve(s.Ctx, "deadbeef", service.ShareQuery{}, service.ClientInfo{})
	s.ErrorIs(err, service.ErrNotFound)
}

func (s *ServiceSuite) TestQRCode() {
	share, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)

	_, err = s.Shares.QRCode(s.Ctx, s.SellerB.ID, share.Token, 0, "https://pallet.example.com")
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.Shares.QRCode(s.Ctx, s.SellerA.ID, "missing", 0, "")
	s.ErrorIs(err, service.ErrNotFound)

	result, err := s.Shares.QRCode(s.Ctx, s.SellerA.ID, share.Token, 5000, "https://pallet.example.com/")
	s.Require().NoError(err)
	s.Equal("https://pallet.example.com/share/"+share.Token, result.ShareURL)
	s.True(strings.HasPrefix(result.QRCodeURL, "/uploads/qrcode/"+share.Token+"_"))
	s.True(s.Files.Exists(result.QRCodeURL))
}

func (s *ServiceSuite) TestHistory() {
	first, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)
	second, err := s.Shares.Create(s.Ctx, s.SellerA.ID, model.ShareTypeFull)
	s.Require().NoError(err)
	_, err = s.Shares.Create(s.Ctx, s.SellerB.ID, model.ShareTypeFull)
	s.Require().NoError(err)

	views, meta, err := s.Shares.History(s.Ctx, s.SellerA.ID, 1, 10, "http://x")
	s.Require().NoError(err)
	s.Equal(int64(2), meta.TotalCount)
	s.Require().Len(views, 2)
	s.Equal(second.ID, views[0].ID)
	s.Equal(first.ID, views[1].ID)
	s.Equal("http://x/share/"+second.Token, views[0].ShareURL)
}
