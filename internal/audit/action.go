package audit

// Action names a privileged mutation. The set is closed: new actions are
// added here, never composed by callers.
type Action string

const (
	CreatePost   Action = "CREATE_POST"
	UpdatePost   Action = "UPDATE_POST"
	DeletePost   Action = "DELETE_POST"
	PublishPost  Action = "PUBLISH_POST"
	CreateBanner Action = "CREATE_BANNER"
	UpdateBanner Action = "UPDATE_BANNER"
	DeleteBanner Action = "DELETE_BANNER"
	CreateMenu   Action = "CREATE_MENU"
	UpdateMenu   Action = "UPDATE_MENU"
	DeleteMenu   Action = "DELETE_MENU"

	CreateResource     Action = "CREATE_RESOURCE"
	UpdateResource     Action = "UPDATE_RESOURCE"
	DeleteResource     Action = "DELETE_RESOURCE"
	UpdateDonation     Action = "UPDATE_DONATION"
	DeleteDonation     Action = "DELETE_DONATION"
	UpdateConsultation Action = "UPDATE_CONSULTATION"
	DeleteConsultation Action = "DELETE_CONSULTATION"

	UpdateUser      Action = "UPDATE_USER"
	DeleteUser      Action = "DELETE_USER"
	BulkDeleteUsers Action = "BULK_DELETE_USERS"
	SendBulkEmail   Action = "SEND_BULK_EMAIL"
)

var knownActions = map[Action]struct{}{
	CreatePost: {}, UpdatePost: {}, DeletePost: {}, PublishPost: {},
	CreateBanner: {}, UpdateBanner: {}, DeleteBanner: {},
	CreateMenu: {}, UpdateMenu: {}, DeleteMenu: {},
	CreateResource: {}, UpdateResource: {}, DeleteResource: {},
	UpdateDonation: {}, DeleteDonation: {},
	UpdateConsultation: {}, DeleteConsultation: {},
	UpdateUser: {}, DeleteUser: {}, BulkDeleteUsers: {},
	SendBulkEmail: {},
}

// Valid reports whether a belongs to the enumeration.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}
