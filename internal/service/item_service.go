package service

import (
	"errors"
	"strings"

	"github.com/qs3c/engage_go_server/internal/model"
	"github.com/qs3c/engage_go_server/internal/model/dto"
	"github.com/qs3c/engage_go_server/internal/pkg/textutil"
	"github.com/qs3c/engage_go_server/internal/repository"
)

var ErrMissingMedia = errors.New("缺少素材")

type ItemService struct {
	items *repository.ItemRepository
}

// NewItemService 创建条目服务
func NewItemService(items *repository.ItemRepository) *ItemService {
	return &ItemService{items: items}
}

// Register 登记 item
func (s *ItemService) Register(req *dto.CreateItemRequest) (*model.AnalysisItem, error) {
	if req.MediaKey == "" && req.VideoKey == "" && strings.TrimSpace(req.Caption) == "" {
		return nil, ErrMissingMedia
	}

	item := &model.AnalysisItem{
		AccountID:       req.AccountID,
		AccountUsername: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(req.AccountUsername)), "@"),
		Kind:            req.Kind,
		MediaType:       req.MediaType,
		MediaKey:        req.MediaKey,
		VideoKey:        req.VideoKey,
		Caption:         req.Caption,
		Permalink:       req.Permalink,
		Topics:          model.StringArray(textutil.Dedupe(req.Topics)),
		Status:          model.ItemStatusPending,
	}
	if item.Kind == "" {
		item.Kind = model.ItemKindPost
	}
	if item.MediaType == "" {
		item.MediaType = model.MediaTypeImage
	}

	if err := s.items.Create(item); err != nil {
		return nil, err
	}
	return item, nil
}

// Get 获取 item 详情
func (s *ItemService) Get(itemID int64) (*dto.ItemDetail, error) {
	item, err := s.items.GetByID(itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	run, err := item.CurrentRun()
	if err != nil {
		return nil, err
	}
	return dto.NewItemDetail(item, run), nil
}

// ListByAccount 账号最近的 item
func (s *ItemService) ListByAccount(accountID int64, limit int) ([]*dto.ItemDetail, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.items.ListByAccount(accountID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ItemDetail, 0, len(items))
	for _, item := range items {
		run, _ := item.CurrentRun()
		out = append(out, dto.NewItemDetail(item, run))
	}
	return out, nil
}
