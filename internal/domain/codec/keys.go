package codec

// Storage keys.
const (
	tierKeyPrefix = "ladder_tiers_class_v1::"
	SpotlightKey  = "ladder_spotlight_v1"
	MetaKey       = "ladder_meta_v1"
)

// TierKey returns the key holding classID's tier map.
func TierKey(classID string) string {
	return tierKeyPrefix + classID
}
