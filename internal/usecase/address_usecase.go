package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

type AddressDTO struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	PostalCode string `json:"postal_code"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"is_default"`
	CreatedAt  string `json:"created_at"`
}

type AddressCreateRequest struct {
	PostalCode string `json:"postal_code"`
	Prefecture string `json:"prefecture"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"is_default"`
}

type AddressUsecase struct {
	addresses repository.AddressRepository
}

func NewAddressUsecase(addresses repository.AddressRepository) *AddressUsecase {
	return &AddressUsecase{addresses: addresses}
}

func (u *AddressUsecase) List(ctx context.Context, userID int64) ([]AddressDTO, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	list, err := u.addresses.ListByUserID(ctx, userID)
	if err != nil {
		return nil, newDBError(err)
	}

	out := make([]AddressDTO, 0, len(list))
	for i := range list {
		out = append(out, toAddressDTO(&list[i]))
	}
	return out, nil
}

func (u *AddressUsecase) Create(ctx context.Context, userID int64, req AddressCreateRequest) (AddressDTO, error) {
	if userID <= 0 {
		return AddressDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//入力チェック
	req.PostalCode = strings.TrimSpace(req.PostalCode)
	req.Prefecture = strings.TrimSpace(req.Prefecture)
	req.City = strings.TrimSpace(req.City)
	req.Line1 = strings.TrimSpace(req.Line1)
	req.Name = strings.TrimSpace(req.Name)
	if req.PostalCode == "" || req.Prefecture == "" || req.City == "" || req.Line1 == "" || req.Name == "" {
		return AddressDTO{}, invalidInput("invalid address")
	}

	now := time.Now()
	created, err := u.addresses.Create(ctx, model.Address{
		UserID:     userID,
		PostalCode: req.PostalCode,
		Prefecture: req.Prefecture,
		City:       req.City,
		Line1:      req.Line1,
		Line2:      strings.TrimSpace(req.Line2),
		Name:       req.Name,
		Phone:      strings.TrimSpace(req.Phone),
		IsDefault:  req.IsDefault,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return AddressDTO{}, newDBError(err)
	}

	return toAddressDTO(&created), nil
}

func (u *AddressUsecase) Delete(ctx context.Context, userID int64, addressID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if addressID <= 0 {
		return invalidInput("invalid id")
	}

	//所有チェック（本人のみ）
	a, err := u.addresses.FindByID(ctx, addressID)
	if err == repository.ErrNotFound {
		return newKindError(http.StatusNotFound, ErrNotFound, "not found")
	}
	if err != nil {
		return newDBError(err)
	}
	if a.UserID != userID {
		return newKindError(http.StatusForbidden, ErrForbidden, "forbidden")
	}

	//注文は住所をコピーして持つので、削除しても注文には影響しない
	if err := u.addresses.Delete(ctx, addressID); err != nil {
		if err == repository.ErrNotFound {
			return newKindError(http.StatusNotFound, ErrNotFound, "not found")
		}
		return newDBError(err)
	}

	return nil
}

func toAddressDTO(a *model.Address) AddressDTO {
	return AddressDTO{
		ID:         a.ID,
		UserID:     a.UserID,
		PostalCode: a.PostalCode,
		Prefecture: a.Prefecture,
		City:       a.City,
		Line1:      a.Line1,
		Line2:      a.Line2,
		Name:       a.Name,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}
