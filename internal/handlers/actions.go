package handlers

// Action names attached to operator log lines.
const (
	ActionCommandStart     = "command_start"
	ActionCommandHelp      = "command_help"
	ActionCommandStatus    = "command_status"
	ActionCommandQueue     = "command_queue"
	ActionCommandSchedule  = "command_schedule"
	ActionSetInterval      = "set_interval"
	ActionSetWindow        = "set_window"
	ActionSetWeekdays      = "set_weekdays"
	ActionSetDelayedStart  = "set_delayed_start"
	ActionClearStart       = "clear_delayed_start"
	ActionToggle           = "toggle"
	ActionSetChannel       = "set_channel"
	ActionCommandChannel   = "command_channel"
	ActionSetSignature     = "set_signature"
	ActionClearQueue       = "clear_queue"
	ActionRemoveItem       = "remove_item"
	ActionShuffleQueue     = "shuffle_queue"
	ActionPublishNow       = "publish_now"
	ActionPublishAt        = "publish_at"
	ActionPublishAll       = "publish_all"
	ActionArmDirectPost    = "arm_direct_post"
	ActionPublishDirect    = "publish_direct"
	ActionCommandCheckTime = "command_check_time"
	ActionSetItemCaption   = "set_item_caption"
	ActionRetryFailed      = "retry_failed"
	ActionSubmitMedia      = "submit_media"
	ActionSubmitMediaGroup = "submit_media_group"
)
