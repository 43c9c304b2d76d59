package http

import (
	"encoding/json"

	"github.com/vovakirdan/storyhub/internal/core"
	"github.com/vovakirdan/storyhub/internal/proto"
	"github.com/vovakirdan/storyhub/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func decodeData(inbound proto.Inbound, v any) *proto.Error {
	if len(inbound.Data) == 0 {
		return &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "data is required"}
	}
	if err := json.Unmarshal(inbound.Data, v); err != nil {
		return &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed data"}
	}
	return nil
}

// inboundToCommand validates the envelope shape. Authorization stays in the core.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	cmd := &core.Command{RequestID: inbound.RequestID}

	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var room proto.RoomData
		if perr := decodeData(inbound, &room); perr != nil {
			return nil, perr
		}
		if room.StoryID == "" {
			return nil, badRequest("story_id is required")
		}
		cmd.Kind = core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeave {
			cmd.Kind = core.CommandLeaveRoom
		}
		cmd.StoryID = room.StoryID
	case proto.InboundTypeComment:
		var comment proto.CommentData
		if perr := decodeData(inbound, &comment); perr != nil {
			return nil, perr
		}
		if comment.StoryID == "" {
			return nil, badRequest("story_id is required")
		}
		if h := comment.Highlight; h != nil {
			if h.Start < 0 || h.End < h.Start {
				return nil, badRequest("highlight range is invalid")
			}
			cmd.Highlight = &store.HighlightRange{Start: h.Start, End: h.End}
		}
		cmd.Kind = core.CommandNewComment
		cmd.StoryID = comment.StoryID
		cmd.Content = comment.Content
	case proto.InboundTypeEditComment:
		var edit proto.EditCommentData
		if perr := decodeData(inbound, &edit); perr != nil {
			return nil, perr
		}
		if edit.StoryID == "" || edit.CommentID == "" {
			return nil, badRequest("story_id and comment_id are required")
		}
		cmd.Kind = core.CommandEditComment
		cmd.StoryID = edit.StoryID
		cmd.CommentID = edit.CommentID
		cmd.Content = edit.Content
	case proto.InboundTypeStoryUpdate:
		var update proto.StoryUpdateData
		if perr := decodeData(inbound, &update); perr != nil {
			return nil, perr
		}
		if update.StoryID == "" {
			return nil, badRequest("story_id is required")
		}
		cmd.Kind = core.CommandStoryUpdate
		cmd.StoryID = update.StoryID
		cmd.Content = update.Content
	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var typing proto.TypingData
		if perr := decodeData(inbound, &typing); perr != nil {
			return nil, perr
		}
		if typing.StoryID == "" {
			return nil, badRequest("story_id is required")
		}
		cmd.Kind = core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			cmd.Kind = core.CommandTypingStop
		}
		cmd.StoryID = typing.StoryID
		cmd.TypingKind = typing.Kind
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
	return cmd, nil
}

func userFrom(p *core.Participant) proto.User {
	if p == nil {
		return proto.User{}
	}
	return proto.User{UserID: p.UserID, Name: p.Name, Role: p.Role}
}

func commentFrom(c *store.Comment) proto.Comment {
	out := proto.Comment{
		ID:         c.ID,
		StoryID:    c.StoryID,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		AuthorRole: c.AuthorRole,
		Content:    c.Content,
		CreatedAt:  proto.Millis(c.CreatedAt),
		UpdatedAt:  proto.Millis(c.UpdatedAt),
	}
	if c.Highlight != nil {
		out.Highlight = &proto.Highlight{Start: c.Highlight.Start, End: c.Highlight.End}
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{
		Type:      proto.OutboundTypeEvent,
		Event:     event.Kind.String(),
		RequestID: event.RequestID,
	}

	switch event.Kind {
	case core.EventConnected:
		out.Data = proto.EventConnected{ConnectionID: event.ConnID, User: userFrom(event.User)}
	case core.EventRoomSnapshot:
		data := proto.EventRoomSnapshot{StoryID: event.StoryID, Participants: []proto.User{}}
		if snap := event.Snapshot; snap != nil {
			data.Content = snap.Content
			data.UpdatedAt = proto.Millis(snap.UpdatedAt)
			for i := range snap.Participants {
				data.Participants = append(data.Participants, userFrom(&snap.Participants[i]))
			}
		}
		out.Data = data
	case core.EventUserJoined, core.EventUserLeft:
		out.Data = proto.EventPresence{StoryID: event.StoryID, User: userFrom(event.User)}
	case core.EventNewComment:
		data := proto.EventNewComment{StoryID: event.StoryID}
		if event.Comment != nil {
			data.Comment = commentFrom(event.Comment)
		}
		out.Data = data
	case core.EventCommentUpdated:
		data := proto.EventCommentUpdated{StoryID: event.StoryID}
		if c := event.Comment; c != nil {
			data.CommentID = c.ID
			data.Content = c.Content
			data.UpdatedAt = proto.Millis(c.UpdatedAt)
		}
		out.Data = data
	case core.EventStoryUpdated:
		data := proto.EventStoryUpdated{
			StoryID:   event.StoryID,
			Content:   event.Content,
			UpdatedAt: proto.Millis(event.UpdatedAt),
		}
		if event.User != nil {
			data.UserID = event.User.UserID
		}
		out.Data = data
	case core.EventUserTyping, core.EventUserStoppedTyping:
		out.Data = proto.EventTyping{StoryID: event.StoryID, User: userFrom(event.User), Kind: event.TypingKind}
	case core.EventNotification:
		data := proto.EventNotification{StoryID: event.StoryID}
		if n := event.Notification; n != nil {
			data.Type = n.Type
			data.StoryID = n.StoryID
			data.Message = n.Message
			if n.Comment != nil {
				c := commentFrom(n.Comment)
				data.Comment = &c
			}
		}
		out.Data = data
	case core.EventAck:
		out.Data = proto.EventAck{Op: event.Op, StoryID: event.StoryID}
	case core.EventError:
		out = proto.Outbound{Type: proto.OutboundTypeError, RequestID: event.RequestID}
		if event.Error != nil {
			out.Error = &proto.Error{Code: event.Error.Code, Msg: event.Error.Message, Reasons: event.Error.Reasons}
		}
	}
	return out
}
