package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/suteetoe/pallet-service/internal/model"
	"github.com/suteetoe/pallet-service/internal/visibility"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultQRCodeSize = 500
	MinQRCodeSize     = 100
	MaxQRCodeSize     = 1000
)

var shareSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"name":         "name",
	"product_code": "product_code",
}

// ShareService issues share links and serves the read-only catalog behind them
type ShareService struct {
	db    *gorm.DB
	files FileStore
	now   func() time.Time
}

func NewShareService(db *gorm.DB, files FileStore) *ShareService {
	return &ShareService{db: db, files: files, now: time.Now}
}

// ShareQuery filters the products of a shared catalog
type ShareQuery struct {
	Keyword   string
	BrandID   uint
	SortField string
	SortOrder string
	Page      int
	PageSize  int
}

// ClientInfo identifies the visitor of a share link
type ClientInfo struct {
	IP        string
	UserAgent string
}

// SellerInfo is the public contact card of the share issuer
type SellerInfo struct {
	ID           uint          `json:"id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone"`
	Email        string        `json:"email"`
	Company      string        `json:"company"`
	Avatar       string        `json:"avatar"`
	WechatQRCode string        `json:"wechat_qrcode"`
	Stores       []model.Store `json:"stores"`
}

// SharedCatalog is what a share link resolves to
type SharedCatalog struct {
	PalletType string          `json:"pallet_type"`
	SellerInfo SellerInfo      `json:"seller_info"`
	Items      []model.Product `json:"items"`
	Meta       PageMeta        `json:"meta"`
}

// ShareView is a share with its public URL
type ShareView struct {
	model.PalletShare
	ShareURL string `json:"share_url"`
}

// QRCodeResult points at a rendered QR code
type QRCodeResult struct {
	QRCodeURL string `json:"qrcode_url"`
	ShareURL  string `json:"share_url"`
}

// Create issues a share link. The pallet type is fixed from the issuer's role now
// and does not follow later role changes.
func (s *ShareService) Create(ctx context.Context, callerID uint, shareType string) (*model.PalletShare, error) {
	shareType = strings.ToUpper(strings.TrimSpace(shareType))
	if shareType == "" {
		shareType = model.ShareTypeFull
	}
	if shareType != model.ShareTypeFull {
		return nil, Invalid("share_type must be FULL")
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, callerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("user not found")
		}
		return nil, err
	}

	token, err := newShareToken()
	if err != nil {
		return nil, fmt.Errorf("generate share token: %w", err)
	}

	palletType := visibility.OwnerSeller
	if user.IsAdmin {
		palletType = visibility.OwnerCompany
	}
	share := &model.PalletShare{
		UserID:     user.ID,
		Token:      token,
		ShareType:  shareType,
		PalletType: palletType,
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		return nil, fmt.Errorf("create share: %w", err)
	}
	return share, nil
}

// Resolve returns the catalog a token grants access to and records the visit
func (s *ShareService) Resolve(ctx context.Context, token string, q ShareQuery, client ClientInfo) (*SharedCatalog, error) {
	db := s.db.WithContext(ctx)

	var share model.PalletShare
	if err := db.Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("share not found")
		}
		return nil, err
	}

	owner := visibility.Seller(share.UserID)
	if share.PalletType == visibility.OwnerCompany {
		owner = visibility.Company()
	}

	query := db.Model(&model.Product{}).Scopes(visibility.OwnedBy(owner, "products"))
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		query = query.Where("(LOWER(products.name) LIKE LOWER(?) OR products.product_code = ?)", "%"+kw+"%", kw)
	}
	if q.BrandID != 0 {
		query = query.Where("products.brand_id = ?", q.BrandID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	page := NewPage(q.Page, q.PageSize, 1)
	sortColumn, ok := shareSortColumns[q.SortField]
	if !ok {
		sortColumn = "created_at"
	}

	items := []model.Product{}
	err := query.Session(&gorm.Session{}).
		Preload("Brand").
		Preload("PriceTiers", func(db *gorm.DB) *gorm.DB { return db.Order("quantity ASC") }).
		Preload("Attachments").
		Order("products." + sortColumn + " " + SortOrder(q.SortOrder)).
		Order("products.id DESC").
		Limit(page.Size).
		Offset(page.Offset()).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	var issuer model.User
	if err := db.Preload("Stores").First(&issuer, share.UserID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	s.recordVisit(ctx, share.ID, client)

	stores := issuer.Stores
	if stores == nil {
		stores = []model.Store{}
	}
	return &SharedCatalog{
		PalletType: share.PalletType,
		SellerInfo: SellerInfo{
			ID:           issuer.ID,
			Name:         issuer.Name,
			Phone:        issuer.Phone,
			Email:        issuer.Email,
			Company:      issuer.Company,
			Avatar:       issuer.Avatar,
			WechatQRCode: issuer.WechatQRCode,
			Stores:       stores,
		},
		Items: items,
		Meta:  page.Meta(total),
	}, nil
}

// recordVisit bumps the share's access counter and appends a visit log.
// Failures are logged only, the catalog is still served.
func (s *ShareService) recordVisit(ctx context.Context, shareID uint, client ClientInfo) {
	db := s.db.WithContext(ctx)
	log := logger.Ctx(ctx)
	now := s.now()

	if err := db.Model(&model.PalletShare{}).Where("id = ?", shareID).Updates(map[string]interface{}{
		"access_count":  gorm.Expr("access_count + 1"),
		"last_accessed": now,
	}).Error; err != nil {
		log.Warn("Failed to count share access", zap.Uint("share_id", shareID), zap.Error(err))
	}

	visit := &model.CustomerLog{ShareID: shareID, IPAddress: client.IP, UserAgent: client.UserAgent, AccessTime: now}
	if err := db.Create(visit).Error; err != nil {
		log.Warn("Failed to record share visit", zap.Uint("share_id", shareID), zap.Error(err))
	}
}

// QRCode renders a PNG QR code for one of the caller's shares
func (s *ShareService) QRCode(ctx context.Context, callerID uint, token string, size int, baseURL string) (*QRCodeResult, error) {
	var share model.PalletShare
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound("share not found")
		}
		return nil, err
	}
	if share.UserID != callerID {
		return nil, Forbidden("no permission for this share")
	}

	if size == 0 {
		size = DefaultQRCodeSize
	}
	size = min(max(size, MinQRCodeSize), MaxQRCodeSize)

	shareURL := ShareURL(baseURL, share.Token)
	png, err := qrcode.Encode(shareURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qrcode: %w", err)
	}

	name := fmt.Sprintf("%s_%d.png", share.Token, s.now().UnixMilli())
	qrURL, err := s.files.SaveAs(storage.KindQRCode, name, png)
	if err != nil {
		return nil, fmt.Errorf("save qrcode: %w", err)
	}
	return &QRCodeResult{QRCodeURL: qrURL, ShareURL: shareURL}, nil
}

// History lists the caller's shares, newest first
func (s *ShareService) History(ctx context.Context, callerID uint, pageNum, pageSize int, baseURL string) ([]ShareView, PageMeta, error) {
	page := NewPage(pageNum, pageSize, 1)
	query := s.db.WithContext(ctx).Model(&model.PalletShare{}).Where("user_id = ?", callerID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, PageMeta{}, err
	}

	var shares []model.PalletShare
	if err := query.Session(&gorm.Session{}).
		Order("created_at DESC").Order("id DESC").
		Limit(page.Size).Offset(page.Offset()).
		Find(&shares).Error; err != nil {
		return nil, PageMeta{}, err
	}

	views := make([]ShareView, 0, len(shares))
	for _, sh := range shares {
		views = append(views, ShareView{PalletShare: sh, ShareURL: ShareURL(baseURL, sh.Token)})
	}
	return views, page.Meta(total), nil
}

// ShareURL is the public link for token
func ShareURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/share/" + token
}

func newShareToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
