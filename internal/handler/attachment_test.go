package handler_test

import (
	"net/http"

	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
)

func (s *HandlerSuite) TestAvatarUpload() {
	tokenA := s.token(s.SellerA)
	fields := map[string]string{"entity_type": "USER", "entity_id": itoa(s.SellerA.ID), "slot": "avatar"}

	var first model.Attachment
	s.decode(s.upload("/api/pallet/attachments/image", tokenA, "me.png", []byte("png"), fields), http.StatusCreated, &first)

	var second model.Attachment
	s.decode(s.upload("/api/pallet/attachments/image", tokenA, "me2.jpg", []byte("jpg"), fields), http.StatusCreated, &second)

	var user model.User
	s.Require().NoError(s.DB.First(&user, s.SellerA.ID).Error)
	s.Equal(second.FilePath, user.Avatar)
	s.False(s.Files.Exists(first.FilePath))

	var rows int64
	s.Require().NoError(s.DB.Model(&model.Attachment{}).
		Where("entity_type = ? AND entity_id = ? AND slot = ?", model.EntityUser, s.SellerA.ID, model.SlotAvatar).
		Count(&rows).Error)
	s.EqualValues(1, rows)

	s.decode(s.upload("/api/pallet/attachments/image", s.token(s.SellerB), "x.png", []byte("png"), fields),
		http.StatusForbidden, nil)
	s.decode(s.upload("/api/pallet/attachments/image", tokenA, "x.exe", []byte("MZ"), fields),
		http.StatusBadRequest, nil)

	s.decode(s.do(http.MethodDelete, "/api/pallet/attachments/"+itoa(second.ID), tokenA, nil), http.StatusOK, nil)
	s.Require().NoError(s.DB.First(&user, s.SellerA.ID).Error)
	s.Empty(user.Avatar)
}

func (s *HandlerSuite) TestMaterialUpload() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	tokenA := s.token(s.SellerA)
	fields := map[string]string{"entity_type": "PRODUCT", "entity_id": itoa(p.ID)}

	var zip model.Attachment
	s.decode(s.upload("/api/pallet/attachments/material", tokenA, "specs.zip", []byte("PK"), fields),
		http.StatusCreated, &zip)
	s.Equal(model.FileTypeMaterial, zip.FileType)

	s.decode(s.upload("/api/pallet/attachments/material", tokenA, "photo.png", []byte("png"), fields),
		http.StatusBadRequest, nil)

	big := make([]byte, 5<<20)
	s.decode(s.upload("/api/pallet/attachments/material", tokenA, "huge.zip", big, fields),
		http.StatusRequestEntityTooLarge, nil)
}

func (s *HandlerSuite) TestRebindAttachment() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	tokenA := s.token(s.SellerA)

	var upload model.Attachment
	s.decode(s.upload("/api/pallet/attachments/image", tokenA, "p.png", []byte("png"),
		map[string]string{"entity_type": "PRODUCT"}), http.StatusCreated, &upload)

	var moved model.Attachment
	s.decode(s.do(http.MethodPut, "/api/pallet/attachments/"+itoa(upload.ID), tokenA,
		obj{"entity_type": "PRODUCT", "entity_id": p.ID}), http.StatusOK, &moved)
	s.Equal(p.ID, moved.EntityID)

	s.decode(s.do(http.MethodPut, "/api/pallet/attachments/"+itoa(upload.ID), s.token(s.SellerB),
		obj{"entity_type": "PRODUCT", "entity_id": 0}), http.StatusForbidden, nil)
}
