package cart

import (
	"context"
	"testing"

	"storefront/models"
	"storefront/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewService(db, zerolog.Nop()), db
}

func quantities(view View) map[uint]uint {
	out := map[uint]uint{}
	for _, line := range view.Items {
		out[line.ProductID] = line.Quantity
	}
	return out
}

func TestAddCreatesAnonymousCartAndClampsToStock(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)
	guest := Owner{AnonymousID: "guest-1"}

	line, err := svc.Add(ctx, guest, servo.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, uint(3), line.Quantity)
	assert.False(t, line.Adjusted)

	line, err = svc.Add(ctx, guest, servo.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, uint(5), line.Quantity)
	assert.True(t, line.Adjusted)
	assert.Equal(t, uint(750), line.LineTotal)

	var carts []models.Cart
	require.NoError(t, db.Find(&carts).Error)
	require.Len(t, carts, 1)
	require.NotNil(t, carts[0].AnonymousCartUUID)
	assert.Equal(t, "guest-1", *carts[0].AnonymousCartUUID)
}

func TestAddRejectsUnavailableProducts(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	empty := testutil.CreateProduct(t, db, "Empty", "EM-1", 10, 0)
	hidden := testutil.CreateProduct(t, db, "Hidden", "HD-1", 10, 5, testutil.Inactive())
	owner := Owner{UserID: 1}

	_, err := svc.Add(ctx, owner, empty.ID, 1)
	assert.ErrorIs(t, err, ErrOutOfStock)
	_, err = svc.Add(ctx, owner, hidden.ID, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.Add(ctx, owner, 999, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.Add(ctx, owner, empty.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Add(ctx, Owner{}, empty.ID, 1)
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestUpdateAndRemove(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)
	sensor := testutil.CreateProduct(t, db, "Sensor", "SN-1", 80, 10)
	owner := Owner{UserID: 3}

	_, err := svc.Update(ctx, owner, servo.ID, 1)
	assert.ErrorIs(t, err, ErrCartNotFound)

	_, err = svc.Add(ctx, owner, servo.ID, 1)
	require.NoError(t, err)

	line, err := svc.Update(ctx, owner, servo.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, uint(5), line.Quantity)
	assert.True(t, line.Adjusted)

	_, err = svc.Update(ctx, owner, sensor.ID, 2)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = svc.Update(ctx, owner, servo.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	require.NoError(t, svc.Remove(ctx, owner, servo.ID))
	assert.ErrorIs(t, svc.Remove(ctx, owner, servo.ID), ErrItemNotFound)

	// 刪除後可再次加入，唯一索引不受影響
	_, err = svc.Add(ctx, owner, servo.ID, 2)
	require.NoError(t, err)
}

func TestGetReconcilesWithCurrentStock(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)
	sensor := testutil.CreateProduct(t, db, "Sensor", "SN-1", 80, 10)
	board := testutil.CreateProduct(t, db, "Board", "BD-1", 500, 2)
	owner := Owner{UserID: 1}

	for _, p := range []models.Product{servo, sensor, board} {
		_, err := svc.Add(ctx, owner, p.ID, 2)
		require.NoError(t, err)
	}

	require.NoError(t, db.Model(&servo).Update("stock", 1).Error)
	require.NoError(t, db.Model(&sensor).Update("active", false).Error)
	require.NoError(t, db.Delete(&board).Error)

	view, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, servo.ID, view.Items[0].ProductID)
	assert.Equal(t, uint(1), view.Items[0].Quantity)
	assert.True(t, view.Items[0].Adjusted)
	assert.Equal(t, uint(150), view.Subtotal)

	// 校正結果已寫回資料庫
	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	view, err = svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.False(t, view.Items[0].Adjusted)
}

func TestGetWithoutCartIsEmpty(t *testing.T) {
	svc, _ := newService(t)
	view, err := svc.Get(context.Background(), Owner{AnonymousID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.NotNil(t, view.Items)
}

func TestSyncReplacesCartAndReportsAdjustments(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)
	sensor := testutil.CreateProduct(t, db, "Sensor", "SN-1", 80, 10)
	empty := testutil.CreateProduct(t, db, "Empty", "EM-1", 10, 0)
	hidden := testutil.CreateProduct(t, db, "Hidden", "HD-1", 10, 5, testutil.Inactive())
	board := testutil.CreateProduct(t, db, "Board", "BD-1", 500, 2)
	owner := Owner{UserID: 9}

	_, err := svc.Add(ctx, owner, board.ID, 1)
	require.NoError(t, err)

	view, adjustments, err := svc.Sync(ctx, owner, []SyncLine{
		{ProductID: servo.ID, Quantity: 4},
		{ProductID: sensor.ID, Quantity: 2},
		{ProductID: servo.ID, Quantity: 3},
		{ProductID: empty.ID, Quantity: 1},
		{ProductID: hidden.ID, Quantity: 1},
		{ProductID: 12345, Quantity: 1},
		{ProductID: board.ID, Quantity: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, map[uint]uint{servo.ID: 5, sensor.ID: 2}, quantities(view))
	assert.Equal(t, servo.ID, view.Items[0].ProductID)
	assert.Equal(t, uint(5*150+2*80), view.Subtotal)
	assert.Equal(t, uint(7), view.TotalQuantity)
	assert.Equal(t, []Adjustment{
		{ProductID: servo.ID, Requested: 7, Quantity: 5, Reason: ReasonClamped},
		{ProductID: empty.ID, Requested: 1, Reason: ReasonOutOfStock},
		{ProductID: hidden.ID, Requested: 1, Reason: ReasonUnavailable},
		{ProductID: 12345, Requested: 1, Reason: ReasonNotFound},
	}, adjustments)

	persisted, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, quantities(view), quantities(persisted))
}

func TestMergeSumsAndClamps(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)
	sensor := testutil.CreateProduct(t, db, "Sensor", "SN-1", 80, 10)
	guest := Owner{AnonymousID: "guest-7"}
	member := Owner{UserID: 4}

	_, err := svc.Add(ctx, member, servo.ID, 3)
	require.NoError(t, err)
	_, err = svc.Add(ctx, guest, servo.ID, 4)
	require.NoError(t, err)
	_, err = svc.Add(ctx, guest, sensor.ID, 2)
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, guest.AnonymousID, member.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, merged)

	view, err := svc.Get(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, map[uint]uint{servo.ID: 5, sensor.ID: 2}, quantities(view))

	var anonymous int64
	require.NoError(t, db.Unscoped().Model(&models.Cart{}).Where("anonymous_cart_uuid IS NOT NULL").Count(&anonymous).Error)
	assert.Zero(t, anonymous)

	// 沒有匿名購物車時不需合併
	merged, err = svc.Merge(ctx, guest.AnonymousID, member.UserID)
	require.NoError(t, err)
	assert.Zero(t, merged)
}

func TestMergeCreatesUserCart(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)

	_, err := svc.Add(ctx, Owner{AnonymousID: "guest"}, servo.ID, 2)
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, "guest", 11)
	require.NoError(t, err)
	assert.Equal(t, 1, merged)

	view, err := svc.Get(ctx, Owner{UserID: 11})
	require.NoError(t, err)
	assert.Equal(t, map[uint]uint{servo.ID: 2}, quantities(view))
}

func TestRemoveProducts(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	servo := testutil.CreateProduct(t, db, "Servo", "SV-1", 150, 5)
	sensor := testutil.CreateProduct(t, db, "Sensor", "SN-1", 80, 10)
	owner := Owner{UserID: 2}

	require.NoError(t, svc.RemoveProducts(ctx, owner.UserID, []uint{servo.ID}))

	for _, p := range []models.Product{servo, sensor} {
		_, err := svc.Add(ctx, owner, p.ID, 1)
		require.NoError(t, err)
	}
	require.NoError(t, svc.RemoveProducts(ctx, owner.UserID, []uint{servo.ID}))

	view, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, map[uint]uint{sensor.ID: 1}, quantities(view))
}
