package packet

import "fmt"

var typeNames = map[Type]string{
	ClientChangeAction:        "change_action",
	ClientSendPublicMessage:   "send_public_message",
	ClientLogout:              "logout",
	ClientRequestStatusUpdate: "request_status_update",
	ClientPing:                "ping",
	ClientStartSpectating:     "start_spectating",
	ClientStopSpectating:      "stop_spectating",
	ClientSpectateFrames:      "spectate_frames",
	ClientCantSpectate:        "cant_spectate",
	ClientSendPrivateMessage:  "send_private_message",
	ClientPartLobby:           "part_lobby",
	ClientJoinLobby:           "join_lobby",
	ClientCreateMatch:         "create_match",
	ClientJoinMatch:           "join_match",
	ClientPartMatch:           "part_match",
	ClientMatchChangeSlot:     "match_change_slot",
	ClientMatchReady:          "match_ready",
	ClientMatchLock:           "match_lock",
	ClientMatchChangeSettings: "match_change_settings",
	ClientMatchStart:          "match_start",
	ClientMatchScoreUpdate:    "match_score_update",
	ClientMatchComplete:       "match_complete",
	ClientMatchChangeMods:     "match_change_mods",
	ClientMatchLoadComplete:   "match_load_complete",
	ClientMatchNoBeatmap:      "match_no_beatmap",
	ClientMatchNotReady:       "match_not_ready",
	ClientMatchFailed:         "match_failed",
	ClientMatchHasBeatmap:     "match_has_beatmap",
	ClientMatchSkipRequest:    "match_skip_request",
	ClientChannelJoin:         "channel_join",
	ClientMatchChangeTeam:     "match_change_team",
	ClientFriendAdd:           "friend_add",
	ClientFriendRemove:        "friend_remove",
	ClientMatchChangePassword: "match_change_password",
	ClientChannelPart:         "channel_part",
	ClientSetAwayMessage:      "set_away_message",
	ClientUserStatsRequest:    "user_stats_request",
	ClientMatchInvite:         "match_invite",
	ClientMatchTransferHost:   "match_transfer_host",
	ClientUserPresenceRequest: "user_presence_request",
	ClientTogglePMBlock:       "toggle_pm_block",
	ClientMatchAbort:          "match_abort",
}

// String returns a stable lowercase name for known packet types.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("packet_%d", uint16(t))
}
