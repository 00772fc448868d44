package transfer

// PostCreation is the JSON payload carried in the "postdata" form field of
// the multipart create request. Media files ride alongside it under the
// keys "media_0", "media_1", ... matching the item index.
type PostCreation struct {
	AccountID int64           `json:"account_id"`
	Items     []PostItemInput `json:"items"`
}

type PostItemInput struct {
	Body         string `json:"body"`
	DelaySeconds int    `json:"delay_seconds"`
}

// QueueRequest asks the allocator to place the given drafts on the user's
// next free slots. PostIDs must reference whole threads by their first item.
type QueueRequest struct {
	PostIDs  []int64 `json:"post_ids"`
	Timezone string  `json:"timezone"`
}

// ScheduleRequest pins a draft to an explicit time instead of a queue slot.
type ScheduleRequest struct {
	PostID        int64  `json:"post_id"`
	ScheduledTime string `json:"scheduled_time"`
	Timezone      string `json:"timezone"`
}

type UnscheduleRequest struct {
	PostID int64 `json:"post_id"`
}

// SlotPreview is one upcoming free slot, returned by the queue preview.
type SlotPreview struct {
	ScheduledTime string `json:"scheduled_time"`
	LocalTime     string `json:"local_time"`
}
