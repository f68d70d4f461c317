package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeStampAdded     NotificationType = "stamp_added"
	NotificationTypeRewardEarned   NotificationType = "reward_earned"
	NotificationTypeRewardRedeemed NotificationType = "reward_redeemed"
)

// notificationTitles holds the title shown when the sender supplies none.
var notificationTitles = map[NotificationType]string{
	NotificationTypeStampAdded:     "Stamp added",
	NotificationTypeRewardEarned:   "Reward earned",
	NotificationTypeRewardRedeemed: "Reward redeemed",
}

func (n NotificationType) IsValid() bool {
	_, ok := notificationTitles[n]
	return ok
}

// DefaultTitle returns the stock title for n, or "" for unknown types.
func (n NotificationType) DefaultTitle() string {
	return notificationTitles[n]
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	if t := NotificationType(value); t.IsValid() {
		return t, nil
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
