package consts

const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)
