package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 对象存储目录
const (
	FolderProfilePics     = "profilePics"
	FolderChatBackgrounds = "chat-backgrounds"
	FolderChatMedia       = "chat-media"
	FolderGroupPhotos     = "group-photos"
	FolderUploads         = "uploads"
)

// ProfilePicKey 用户头像，同一用户固定覆盖
func ProfilePicKey(userID string) string {
	return FolderProfilePics + "/" + userID
}

// BackgroundKey 聊天背景：chat-backgrounds/{毫秒时间戳}_{文件名}
func BackgroundKey(now time.Time, filename string) string {
	return fmt.Sprintf("%s/%d_%s", FolderChatBackgrounds, now.UnixMilli(), sanitizeName(filename))
}

// MediaKey 单聊媒体：chat-media/{conversationId}/{uuid}{ext}
func MediaKey(conversationID, filename string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderChatMedia, conversationID, uuid.NewString(), ext(filename))
}

// GroupPhotoKey 群头像：group-photos/{groupId}/{uuid}{ext}
func GroupPhotoKey(groupID, filename string) string {
	return fmt.Sprintf("%s/%s/%s%s", FolderGroupPhotos, groupID, uuid.NewString(), ext(filename))
}

// UploadKey 通用上传：uploads/{uuid}{ext}
func UploadKey(filename string) string {
	return fmt.Sprintf("%s/%s%s", FolderUploads, uuid.NewString(), ext(filename))
}

// folderOf 返回 key 的顶层目录，用于指标标签
func folderOf(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return key
}

// sanitizeName 去掉路径与空白，避免越出目录
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '\t':
			return '_'
		case r < 0x20:
			return -1
		default:
			return r
		}
	}, name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}

func ext(filename string) string {
	e := strings.ToLower(path.Ext(sanitizeName(filename)))
	if len(e) > 10 {
		return ""
	}
	return e
}
