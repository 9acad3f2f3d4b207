package service_test

import (
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
)

func (s *ServiceSuite) TestRecycleRestoreRoundTrip() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet A", visibility.Seller(s.SellerA.ID))
	testutil.CreatePriceTier(s.T(), s.DB, p.ID, "1-10", "12.50")
	seller := s.caller(s.SellerA)

	bin, err := s.Recycle.Recycle(s.Ctx, seller, p.ID, true)
	s.Require().NoError(err)
	s.Equal(visibility.OwnerSeller, bin.OwnerType)
	s.Require().NotNil(bin.OwnerID)
	s.Equal(s.SellerA.ID, *bin.OwnerID)

	var found model.Product
	s.ErrorIs(s.DB.First(&found, p.ID).Error, gormNotFound)

	s.Require().NoError(s.Recycle.Restore(s.Ctx, seller, bin.ID, true))
	s.Require().NoError(s.DB.Preload("PriceTiers").First(&found, p.ID).Error)
	s.Len(found.PriceTiers, 1)

	var tomb model.RecycleBin
	s.Require().NoError(s.DB.First(&tomb, bin.ID).Error)
	s.True(tomb.IsRestored())
	s.Require().NotNil(tomb.RestoredBy)
	s.Equal(s.SellerA.ID, *tomb.RestoredBy)

	err = s.Recycle.Restore(s.Ctx, seller, bin.ID, true)
	s.ErrorIs(err, service.ErrConflict)
}

func (s *ServiceSuite) TestRecycleRequiresConfirmation() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())

	_, err := s.Recycle.Recycle(s.Ctx, s.caller(s.Admin), p.ID, false)
	s.ErrorIs(err, service.ErrInvalid)
	s.Zero(s.countRows(&model.RecycleBin{}, "entity_id = ?", p.ID))
}

func (s *ServiceSuite) TestRecycleTwiceConflicts() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())
	admin := s.caller(s.Admin)

	_, err := s.Recycle.Recycle(s.Ctx, admin, p.ID, true)
	s.Require().NoError(err)

	_, err = s.Recycle.Recycle(s.Ctx, admin, p.ID, true)
	s.ErrorIs(err, service.ErrConflict)
	s.Equal(int64(1), s.countRows(&model.RecycleBin{}, "entity_id = ?", p.ID))
}

func (s *ServiceSuite) TestRecycleChecksOwnership() {
	company := testutil.CreateProduct(s.T(), s.DB, "Company", visibility.Company())
	sellerOwned := testutil.CreateProduct(s.T(), s.DB, "Seller", visibility.Seller(s.SellerA.ID))

	_, err := s.Recycle.Recycle(s.Ctx, s.caller(s.SellerA), company.ID, true)
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.Recycle.Recycle(s.Ctx, s.caller(s.SellerB), sellerOwned.ID, true)
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.Recycle.Recycle(s.Ctx, s.caller(s.Admin), sellerOwned.ID, true)
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.Recycle.Recycle(s.Ctx, s.caller(s.Admin), 9999, true)
	s.ErrorIs(err, service.ErrNotFound)
}

func (s *ServiceSuite) TestRestoreUsesRecordedOwner() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	bin, err := s.Recycle.Recycle(s.Ctx, s.caller(s.SellerA), p.ID, true)
	s.Require().NoError(err)

	s.ErrorIs(s.Recycle.Restore(s.Ctx, s.caller(s.SellerB), bin.ID, true), service.ErrForbidden)
	s.ErrorIs(s.Recycle.Restore(s.Ctx, s.caller(s.Admin), bin.ID, true), service.ErrForbidden)
	s.ErrorIs(s.Recycle.Restore(s.Ctx, s.caller(s.SellerA), 9999, true), service.ErrNotFound)
}

func (s *ServiceSuite) TestRestoreConflictsOnDuplicateCode() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())
	admin := s.caller(s.Admin)
	bin, err := s.Recycle.Recycle(s.Ctx, admin, p.ID, true)
	s.Require().NoError(err)

	dup := &model.Product{Name: "Again", ProductCode: p.ProductCode}
	dup.SetOwner(visibility.Company())
	s.Require().NoError(s.DB.Create(dup).Error)

	s.ErrorIs(s.Recycle.Restore(s.Ctx, admin, bin.ID, true), service.ErrConflict)
}

func (s *ServiceSuite) TestPurgeRemovesProductAndDependents() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	testutil.CreatePriceTier(s.T(), s.DB, p.ID, "1-10", "10.00")
	testutil.CreatePriceTier(s.T(), s.DB, p.ID, "11-50", "9.00")
	att := testutil.CreateAttachment(s.T(), s.DB, s.Files, model.EntityProduct, p.ID)
	seller := s.caller(s.SellerA)

	bin, err := s.Recycle.Recycle(s.Ctx, seller, p.ID, true)
	s.Require().NoError(err)
	s.Require().NoError(s.Recycle.Purge(s.Ctx, seller, bin.ID, true))

	s.Zero(s.countRows(&model.Product{}, "id = ?", p.ID))
	s.Zero(s.countRows(&model.PriceTier{}, "product_id = ?", p.ID))
	s.Zero(s.countRows(&model.Attachment{}, "id = ?", att.ID))
	s.Zero(s.countRows(&model.RecycleBin{}, "id = ?", bin.ID))
	s.False(s.Files.Exists(att.FilePath))
}

func (s *ServiceSuite) TestPurgeRestoredEntryConflicts() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())
	admin := s.caller(s.Admin)
	bin, err := s.Recycle.Recycle(s.Ctx, admin, p.ID, true)
	s.Require().NoError(err)
	s.Require().NoError(s.Recycle.Restore(s.Ctx, admin, bin.ID, true))

	s.ErrorIs(s.Recycle.Purge(s.Ctx, admin, bin.ID, true), service.ErrConflict)
	s.Equal(int64(1), s.countRows(&model.Product{}, "id = ?", p.ID))
}

func (s *ServiceSuite) TestPurgeProductOutsideRecycleBin() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())
	att := testutil.CreateAttachment(s.T(), s.DB, s.Files, model.EntityProduct, p.ID)

	s.ErrorIs(s.Recycle.PurgeProduct(s.Ctx, s.caller(s.SellerA), p.ID), service.ErrForbidden)
	s.Require().NoError(s.Recycle.PurgeProduct(s.Ctx, s.caller(s.Admin), p.ID))

	s.Zero(s.countRows(&model.Product{}, "id = ?", p.ID))
	s.False(s.Files.Exists(att.FilePath))
}

func (s *ServiceSuite) TestBatchRestoreSkipsForeignEntries() {
	a1 := testutil.CreateProduct(s.T(), s.DB, "A1", visibility.Seller(s.SellerA.ID))
	a2 := testutil.CreateProduct(s.T(), s.DB, "A2", visibility.Seller(s.SellerA.ID))
	b1 := testutil.CreateProduct(s.T(), s.DB, "B1", visibility.Seller(s.SellerB.ID))

	binA1, err := s.Recycle.Recycle(s.Ctx, s.caller(s.SellerA), a1.ID, true)
	s.Require().NoError(err)
	binA2, err := s.Recycle.Recycle(s.Ctx, s.caller(s.SellerA), a2.ID, true)
	s.Require().NoError(err)
	binB1, err := s.Recycle.Recycle(s.Ctx, s.caller(s.SellerB), b1.ID, true)
	s.Require().NoError(err)

	result, err := s.Recycle.BatchRestore(s.Ctx, s.caller(s.SellerA), []uint{binA1.ID, binA2.ID, binB1.ID}, true)
	s.Require().NoError(err)
	s.Equal(3, result.Total)
	s.Equal(2, result.Success)
	s.Equal(1, result.Failed)
	s.Equal([]uint{binB1.ID}, result.FailedIDs)

	var still model.Product
	s.ErrorIs(s.DB.First(&still, b1.ID).Error, gormNotFound)
}

func (s *ServiceSuite) TestBatchValidation() {
	_, err := s.Recycle.BatchPurge(s.Ctx, s.caller(s.Admin), []uint{1}, false)
	s.ErrorIs(err, service.ErrInvalid)

	_, err = s.Recycle.BatchPurge(s.Ctx, s.caller(s.Admin), nil, true)
	s.ErrorIs(err, service.ErrInvalid)

	ids := make([]uint, service.MaxBatchSize+1)
	_, err = s.Recycle.BatchRestore(s.Ctx, s.caller(s.Admin), ids, true)
	s.ErrorIs(err, service.ErrInvalid)
}

func (s *ServiceSuite) TestBatchPurge() {
	p1 := testutil.CreateProduct(s.T(), s.DB, "P1", visibility.Company())
	p2 := testutil.CreateProduct(s.T(), s.DB, "P2", visibility.Company())
	admin := s.caller(s.Admin)
	bin1, err := s.Recycle.Recycle(s.Ctx, admin, p1.ID, true)
	s.Require().NoError(err)
	bin2, err := s.Recycle.Recycle(s.Ctx, admin, p2.ID, true)
	s.Require().NoError(err)

	result, err := s.Recycle.BatchPurge(s.Ctx, admin, []uint{bin1.ID, bin2.ID, 9999}, true)
	s.Require().NoError(err)
	s.Equal(2, result.Success)
	s.Equal([]uint{9999}, result.FailedIDs)
	s.Zero(s.countRows(&model.Product{}, "id IN ?", []uint{p1.ID, p2.ID}))
}

func (s *ServiceSuite) TestListIsScopedToCaller() {
	brand := testutil.CreateBrand(s.T(), s.DB, "Acme")
	company := testutil.CreateProduct(s.T(), s.DB, "Blue Pallet", visibility.Company())
	s.Require().NoError(s.DB.Model(company).Update("brand_id", brand.ID).Error)
	other := testutil.CreateProduct(s.T(), s.DB, "Red Pallet", visibility.Company())
	mine := testutil.CreateProduct(s.T(), s.DB, "Seller Pallet", visibility.Seller(s.SellerA.ID))

	admin := s.caller(s.Admin)
	seller := s.caller(s.SellerA)
	_, err := s.Recycle.Recycle(s.Ctx, admin, company.ID, true)
	s.Require().NoError(err)
	otherBin, err := s.Recycle.Recycle(s.Ctx, admin, other.ID, true)
	s.Require().NoError(err)
	_, err = s.Recycle.Recycle(s.Ctx, seller, mine.ID, true)
	s.Require().NoError(err)

	items, meta, err := s.Recycle.List(s.Ctx, admin, service.RecycleQuery{})
	s.Require().NoError(err)
	s.Equal(int64(2), meta.TotalCount)
	s.Len(items, 2)

	items, _, err = s.Recycle.List(s.Ctx, seller, service.RecycleQuery{})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(mine.ID, items[0].EntityID)
	s.Equal("Seller Pallet", items[0].Name)

	items, _, err = s.Recycle.List(s.Ctx, admin, service.RecycleQuery{Keyword: "blue"})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Require().NotNil(items[0].BrandName)
	s.Equal("Acme", *items[0].BrandName)

	items, _, err = s.Recycle.List(s.Ctx, admin, service.RecycleQuery{BrandID: brand.ID})
	s.Require().NoError(err)
	s.Len(items, 1)

	s.Require().NoError(s.Recycle.Restore(s.Ctx, admin, otherBin.ID, true))
	items, _, err = s.Recycle.List(s.Ctx, admin, service.RecycleQuery{Status: service.RecycleStatusRestored})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(other.ID, items[0].EntityID)

	items, _, err = s.Recycle.List(s.Ctx, admin, service.RecycleQuery{Status: service.RecycleStatusAll, SortField: "name", SortOrder: "asc"})
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal("Blue Pallet", items[0].Name)

	_, _, err = s.Recycle.List(s.Ctx, admin, service.RecycleQuery{Status: "bogus"})
	s.ErrorIs(err, service.ErrInvalid)
}
