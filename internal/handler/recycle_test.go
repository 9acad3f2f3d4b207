package handler_test

import (
	"net/http"

	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
)

func (s *HandlerSuite) TestRecycleAndRestore() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	tokenA := s.token(s.SellerA)
	path := "/api/pallet/products/" + itoa(p.ID)

	s.decode(s.do(http.MethodPost, path+"/recycle", tokenA, obj{}), http.StatusBadRequest, nil)
	s.decode(s.do(http.MethodPost, path+"/recycle", s.token(s.SellerB), obj{"confirm": true}), http.StatusForbidden, nil)

	var bin model.RecycleBin
	s.decode(s.do(http.MethodPost, path+"/recycle", tokenA, obj{"confirm": true}), http.StatusOK, &bin)
	s.decode(s.do(http.MethodGet, path, tokenA, nil), http.StatusNotFound, nil)

	var items page[service.RecycleItem]
	s.decode(s.do(http.MethodGet, "/api/pallet/recycle", tokenA, nil), http.StatusOK, &items)
	s.Require().Len(items.Items, 1)
	s.Equal(p.Name, items.Items[0].Name)

	s.decode(s.do(http.MethodGet, "/api/pallet/recycle", s.token(s.SellerB), nil), http.StatusOK, &items)
	s.Empty(items.Items)
	s.decode(s.do(http.MethodGet, "/api/pallet/recycle?status=bogus", tokenA, nil), http.StatusBadRequest, nil)

	s.decode(s.do(http.MethodPost, "/api/pallet/recycle/"+itoa(bin.ID)+"/restore", tokenA, obj{"confirm": true}),
		http.StatusOK, nil)
	s.decode(s.do(http.MethodGet, path, tokenA, nil), http.StatusOK, nil)
	s.decode(s.do(http.MethodPost, "/api/pallet/recycle/"+itoa(bin.ID)+"/restore", tokenA, obj{"confirm": true}),
		http.StatusConflict, nil)

	s.decode(s.do(http.MethodGet, "/api/pallet/recycle?status=restored", tokenA, nil), http.StatusOK, &items)
	s.Len(items.Items, 1)
}

func (s *HandlerSuite) TestBatchPurge() {
	t := s.T()
	tokenA := s.token(s.SellerA)
	var ids []uint
	for _, name := range []string{"one", "two"} {
		p := testutil.CreateProduct(t, s.DB, name, visibility.Seller(s.SellerA.ID))
		var bin model.RecycleBin
		s.decode(s.do(http.MethodPost, "/api/pallet/products/"+itoa(p.ID)+"/recycle", tokenA, obj{"confirm": true}),
			http.StatusOK, &bin)
		ids = append(ids, bin.ID)
	}

	var result service.BatchResult
	s.decode(s.do(http.MethodPost, "/api/pallet/recycle/batch-delete", tokenA,
		obj{"confirm": true, "ids": append(ids, 999999)}), http.StatusOK, &result)
	s.Equal(3, result.Total)
	s.Equal(2, result.Success)
	s.Equal([]uint{999999}, result.FailedIDs)

	var left int64
	s.Require().NoError(s.DB.Unscoped().Model(&model.Product{}).Count(&left).Error)
	s.Zero(left)

	s.decode(s.do(http.MethodPost, "/api/pallet/recycle/batch-restore", tokenA, obj{"ids": ids}),
		http.StatusBadRequest, nil)
}

func (s *HandlerSuite) TestPurgeProduct() {
	t := s.T()
	p := testutil.CreateProduct(t, s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	a := testutil.CreateAttachment(t, s.DB, s.Files, model.EntityProduct, p.ID)

	s.decode(s.do(http.MethodDelete, "/api/pallet/products/"+itoa(p.ID)+"/permanent", s.token(s.SellerB), nil),
		http.StatusForbidden, nil)
	s.decode(s.do(http.MethodDelete, "/api/pallet/products/"+itoa(p.ID)+"/permanent", s.token(s.SellerA), nil),
		http.StatusOK, nil)
	s.False(s.Files.Exists(a.FilePath))
}
