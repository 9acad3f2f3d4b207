package service_test

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/service"
	"github.com/suteetoe/pallet-service/internal/testutil"
	"github.com/suteetoe/pallet-service/internal/visibility"
)

func imageUpload(entityType string, entityID uint, slot string) service.UploadInput {
	body := []byte("fake png bytes")
	return service.UploadInput{
		EntityType: entityType,
		EntityID:   entityID,
		Slot:       slot,
		FileName:   "photo.png",
		Size:       int64(len(body)),
		Content:    bytes.NewReader(body),
	}
}

func (s *ServiceSuite) uploadedFiles(dir string) []os.DirEntry {
	entries, err := os.ReadDir(filepath.Join(s.Files.Root(), dir))
	s.Require().NoError(err)
	return entries
}

func (s *ServiceSuite) TestAvatarUploadReplacesPreviousFile() {
	me := s.caller(s.SellerA)

	first, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar))
	s.Require().NoError(err)
	second, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar))
	s.Require().NoError(err)

	s.Equal(int64(1), s.countRows(&model.Attachment{}, "entity_type = ? AND entity_id = ? AND slot = ?",
		model.EntityUser, s.SellerA.ID, model.SlotAvatar))
	s.False(s.Files.Exists(first.FilePath))
	s.True(s.Files.Exists(second.FilePath))

	var user model.User
	s.Require().NoError(s.DB.First(&user, s.SellerA.ID).Error)
	s.Equal(second.FilePath, user.Avatar)
}

func (s *ServiceSuite) TestUserSlotsAreIndependent() {
	me := s.caller(s.SellerA)

	avatar, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar))
	s.Require().NoError(err)
	qr, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, model.SlotQRCode))
	s.Require().NoError(err)

	var user model.User
	s.Require().NoError(s.DB.First(&user, s.SellerA.ID).Error)
	s.Equal(avatar.FilePath, user.Avatar)
	s.Equal(qr.FilePath, user.WechatQRCode)
	s.True(s.Files.Exists(avatar.FilePath))
}

func (s *ServiceSuite) TestConcurrentAvatarUploadsLeaveOneRow() {
	me := s.caller(s.SellerA)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	var rows []model.Attachment
	s.Require().NoError(s.DB.Where("entity_type = ? AND entity_id = ? AND slot = ?",
		model.EntityUser, s.SellerA.ID, model.SlotAvatar).Find(&rows).Error)
	s.Require().Len(rows, 1)

	var user model.User
	s.Require().NoError(s.DB.First(&user, s.SellerA.ID).Error)
	s.Equal(rows[0].FilePath, user.Avatar)
	s.True(s.Files.Exists(user.Avatar))
	s.Len(s.uploadedFiles("images"), 1)
}

func (s *ServiceSuite) TestUploadRejectsBadInput() {
	me := s.caller(s.SellerA)

	in := imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar)
	in.FileName = "script.exe"
	_, err := s.Attachments.UploadImage(s.Ctx, me, in)
	s.ErrorIs(err, service.ErrInvalid)

	in = imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar)
	in.Size = 2 << 20
	_, err = s.Attachments.UploadImage(s.Ctx, me, in)
	s.ErrorIs(err, service.ErrTooLarge)

	_, err = s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, "banner"))
	s.ErrorIs(err, service.ErrInvalid)

	_, err = s.Attachments.UploadImage(s.Ctx, me, imageUpload("SUPPLIER", 1, ""))
	s.ErrorIs(err, service.ErrInvalid)

	s.Empty(s.uploadedFiles("images"))
}

func (s *ServiceSuite) TestUploadPermissionFailureRemovesFile() {
	foreign := testutil.CreateProduct(s.T(), s.DB, "Foreign", visibility.Seller(s.SellerB.ID))

	_, err := s.Attachments.UploadImage(s.Ctx, s.caller(s.SellerA), imageUpload(model.EntityProduct, foreign.ID, ""))
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.Attachments.UploadImage(s.Ctx, s.caller(s.SellerA), imageUpload(model.EntityUser, s.SellerB.ID, model.SlotAvatar))
	s.ErrorIs(err, service.ErrForbidden)

	_, err = s.Attachments.UploadImage(s.Ctx, s.caller(s.SellerA), imageUpload(model.EntityProduct, 9999, ""))
	s.ErrorIs(err, service.ErrNotFound)

	s.Empty(s.uploadedFiles("images"))
	s.Zero(s.countRows(&model.Attachment{}, "1 = 1"))
}

func (s *ServiceSuite) TestBrandImageRequiresAdmin() {
	brand := testutil.CreateBrand(s.T(), s.DB, "Acme")

	_, err := s.Attachments.UploadImage(s.Ctx, s.caller(s.SellerA), imageUpload(model.EntityBrand, brand.ID, ""))
	s.ErrorIs(err, service.ErrForbidden)

	first, err := s.Attachments.UploadImage(s.Ctx, s.caller(s.Admin), imageUpload(model.EntityBrand, brand.ID, ""))
	s.Require().NoError(err)
	second, err := s.Attachments.UploadImage(s.Ctx, s.caller(s.Admin), imageUpload(model.EntityBrand, brand.ID, ""))
	s.Require().NoError(err)

	s.False(s.Files.Exists(first.FilePath))
	s.True(s.Files.Exists(second.FilePath))
	s.Equal(int64(1), s.countRows(&model.Attachment{}, "entity_type = ? AND entity_id = ?", model.EntityBrand, brand.ID))
}

func (s *ServiceSuite) TestProductImagesAppendUnlessReplacing() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	me := s.caller(s.SellerA)

	for i := 0; i < 2; i++ {
		_, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityProduct, p.ID, ""))
		s.Require().NoError(err)
	}
	s.Equal(int64(2), s.countRows(&model.Attachment{}, "entity_type = ? AND entity_id = ?", model.EntityProduct, p.ID))

	in := imageUpload(model.EntityProduct, p.ID, "")
	in.ReplaceExisting = true
	_, err := s.Attachments.UploadImage(s.Ctx, me, in)
	s.Require().NoError(err)
	s.Equal(int64(1), s.countRows(&model.Attachment{}, "entity_type = ? AND entity_id = ?", model.EntityProduct, p.ID))
	s.Len(s.uploadedFiles("images"), 1)
}

func (s *ServiceSuite) TestMaterialReplacesPrevious() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())
	admin := s.caller(s.Admin)

	upload := func() *model.Attachment {
		body := []byte("PK\x03\x04")
		a, err := s.Attachments.UploadMaterial(s.Ctx, admin, service.UploadInput{
			EntityID: p.ID,
			FileName: "catalog.zip",
			Size:     int64(len(body)),
			Content:  bytes.NewReader(body),
		})
		s.Require().NoError(err)
		return a
	}

	first := upload()
	second := upload()
	s.Equal(model.FileTypeMaterial, second.FileType)
	s.False(s.Files.Exists(first.FilePath))
	s.True(s.Files.Exists(second.FilePath))
	s.Equal(int64(1), s.countRows(&model.Attachment{}, "entity_type = ? AND entity_id = ? AND file_type = ?",
		model.EntityProduct, p.ID, model.FileTypeMaterial))

	_, err := s.Attachments.UploadMaterial(s.Ctx, admin, imageUpload(model.EntityProduct, p.ID, ""))
	s.ErrorIs(err, service.ErrInvalid)
}

func (s *ServiceSuite) TestUnboundUploadThenRebind() {
	me := s.caller(s.SellerA)

	a, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityProduct, 0, ""))
	s.Require().NoError(err)
	s.Zero(a.EntityID)

	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	rebound, err := s.Attachments.Rebind(s.Ctx, me, a.ID, model.EntityProduct, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, rebound.EntityID)

	var loaded model.Product
	s.Require().NoError(s.DB.Preload("Attachments").First(&loaded, p.ID).Error)
	s.Require().Len(loaded.Attachments, 1)
	s.Equal(a.ID, loaded.Attachments[0].ID)

	_, err = s.Attachments.Rebind(s.Ctx, s.caller(s.SellerB), a.ID, model.EntityProduct, p.ID)
	s.ErrorIs(err, service.ErrForbidden)
}

func (s *ServiceSuite) TestDeleteAttachment() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Seller(s.SellerA.ID))
	a := testutil.CreateAttachment(s.T(), s.DB, s.Files, model.EntityProduct, p.ID)

	s.ErrorIs(s.Attachments.Delete(s.Ctx, s.caller(s.SellerB), a.ID), service.ErrForbidden)
	s.Require().NoError(s.Attachments.Delete(s.Ctx, s.caller(s.SellerA), a.ID))
	s.False(s.Files.Exists(a.FilePath))
	s.ErrorIs(s.Attachments.Delete(s.Ctx, s.caller(s.SellerA), a.ID), service.ErrNotFound)
}

func (s *ServiceSuite) TestDeleteAvatarClearsUserColumn() {
	me := s.caller(s.SellerA)
	a, err := s.Attachments.UploadImage(s.Ctx, me, imageUpload(model.EntityUser, s.SellerA.ID, model.SlotAvatar))
	s.Require().NoError(err)

	s.Require().NoError(s.Attachments.Delete(s.Ctx, me, a.ID))

	var user model.User
	s.Require().NoError(s.DB.First(&user, s.SellerA.ID).Error)
	s.Empty(user.Avatar)
}

func (s *ServiceSuite) TestDetachFromProduct() {
	p := testutil.CreateProduct(s.T(), s.DB, "Pallet", visibility.Company())
	other := testutil.CreateProduct(s.T(), s.DB, "Other", visibility.Company())
	mine := testutil.CreateAttachment(s.T(), s.DB, s.Files, model.EntityProduct, p.ID)
	theirs := testutil.CreateAttachment(s.T(), s.DB, s.Files, model.EntityProduct, other.ID)

	paths, err := service.DetachFromProduct(s.DB, p.ID, []uint{mine.ID, theirs.ID})
	s.Require().NoError(err)
	s.Equal([]string{mine.FilePath}, paths)
	s.Equal(int64(1), s.countRows(&model.Attachment{}, "id = ?", theirs.ID))
}
