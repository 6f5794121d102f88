package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireRegistrationPostingLock serializes balance posting per price
// registration across instances using MySQL advisory locks. Two documents
// consuming items of the same ata therefore post one after the other, so the
// check-then-debit sequence cannot interleave.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireRegistrationPostingLock(tx *gorm.DB, registrationId int) error {
	lockName := fmt.Sprintf("posting:ata:%d", registrationId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for price_registration_id=%d", registrationId)
	}
	return nil
}

func ReleaseRegistrationPostingLock(tx *gorm.DB, registrationId int) {
	lockName := fmt.Sprintf("posting:ata:%d", registrationId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
