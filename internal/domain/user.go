package domain

type AccountRole string

const (
	AccountRoleClient  AccountRole = "CLIENT"
	AccountRoleTrainer AccountRole = "TRAINER"
	AccountRoleAdmin   AccountRole = "ADMIN"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusDeleted   AccountStatus = "DELETED"
)

// Account is the read-only view of a user owned by the account service.
type Account struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	Name            string        `json:"name"`
	Role            AccountRole   `json:"role"`
	Status          AccountStatus `json:"status"`
	TrainerVerified bool          `json:"trainer_verified"`
}

func (a *Account) IsTrainer() bool {
	return a.Role == AccountRoleTrainer
}

func (a *Account) IsAdmin() bool {
	return a.Role == AccountRoleAdmin
}

func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}
