package eventlog

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message is an event-log message key. The key is the English format string.
type Message string

const (
	MsgTaskReceived      Message = "Build task received for service %s"
	MsgAlreadyRunning    Message = "A build for service %s is already running, skipping"
	MsgCloneAttempt      Message = "Cloning %s (attempt %d)"
	MsgCloneFailed       Message = "Clone failed: %s"
	MsgSourceFetched     Message = "Source fetched, commit %s by %s: %s"
	MsgImageBuildStart   Message = "Dockerfile detected, building image %s"
	MsgSlugBuildStart    Message = "No Dockerfile found, compiling slug"
	MsgDockerfileInvalid Message = "Dockerfile parse failed: %s"
	MsgImageBuildFailed  Message = "Image build failed: %s"
	MsgImagePushing      Message = "Pushing image %s"
	MsgImagePushFailed   Message = "Image push failed: %s"
	MsgImageReady        Message = "Image %s built and pushed"
	MsgMetadataFailed    Message = "Service metadata update failed: %s"
	MsgSlugBuildFailed   Message = "Slug compile failed: %s"
	MsgSlugEmpty         Message = "Slug package is empty or missing: %s"
	MsgSlugReady         Message = "Slug package %s built"
	MsgBuildSucceeded    Message = "Build finished"
	MsgBuildFailed       Message = "Build failed"
	MsgRollout           Message = "Rolling out version %s"
	MsgRolloutFailed     Message = "Automatic rollout failed, start the service manually: %s"
	MsgVersionFailed     Message = "Version record update failed: %s"
	MsgPublishStart      Message = "Publishing %s to %s"
	MsgPublishSucceeded  Message = "Publish to %s finished"
	MsgPublishFailed     Message = "Publish to %s failed: %s"
	MsgImageMissing      Message = "Image %s not found in %s"
	MsgSyncing           Message = "Syncing %s from %s"
	MsgChecksumMismatch  Message = "Checksum mismatch, removing cached %s"
	MsgDeployStarting    Message = "Application synced, starting service"
	MsgDeployFailed      Message = "Application sync failed"
	MsgStartFailed       Message = "Service start failed, start it manually: %s"
	MsgImportStart       Message = "Importing image %s"
)

var zhHans = map[Message]string{
	MsgTaskReceived:      "获取到服务 %s 的构建任务",
	MsgAlreadyRunning:    "服务 %s 正在构建中，跳过本次任务",
	MsgCloneAttempt:      "开始拉取代码 %s（第 %d 次）",
	MsgCloneFailed:       "拉取代码失败：%s",
	MsgSourceFetched:     "代码拉取完成，提交 %s，作者 %s：%s",
	MsgImageBuildStart:   "检测到 Dockerfile，开始构建镜像 %s",
	MsgSlugBuildStart:    "未检测到 Dockerfile，开始编译源码",
	MsgDockerfileInvalid: "Dockerfile 解析失败：%s",
	MsgImageBuildFailed:  "镜像构建失败：%s",
	MsgImagePushing:      "开始推送镜像 %s",
	MsgImagePushFailed:   "镜像推送失败：%s",
	MsgImageReady:        "镜像 %s 构建并推送完成",
	MsgMetadataFailed:    "更新应用信息失败：%s",
	MsgSlugBuildFailed:   "源码编译失败：%s",
	MsgSlugEmpty:         "源码包为空或不存在：%s",
	MsgSlugReady:         "源码包 %s 构建完成",
	MsgBuildSucceeded:    "构建完成",
	MsgBuildFailed:       "构建失败",
	MsgRollout:           "开始部署版本 %s",
	MsgRolloutFailed:     "应用自动部署失败，请手动启动：%s",
	MsgVersionFailed:     "更新版本信息失败：%s",
	MsgPublishStart:      "开始发布 %s 到 %s",
	MsgPublishSucceeded:  "发布到 %s 完成",
	MsgPublishFailed:     "发布到 %s 失败：%s",
	MsgImageMissing:      "镜像 %s 在 %s 中不存在",
	MsgSyncing:           "正在同步 %s，来源 %s",
	MsgChecksumMismatch:  "MD5 校验不通过，删除本地缓存 %s",
	MsgDeployStarting:    "应用同步完成，开始启动应用",
	MsgDeployFailed:      "应用同步失败",
	MsgStartFailed:       "应用启动失败，请手动启动：%s",
	MsgImportStart:       "开始导入镜像 %s",
}

var messages = newCatalog()

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range zhHans {
		_ = b.SetString(language.SimplifiedChinese, string(key), text)
	}
	return b
}

// NewPrinter returns a printer for locale. Unknown locales fall back to English.
func NewPrinter(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	matcher := language.NewMatcher([]language.Tag{language.English, language.SimplifiedChinese})
	matched, _, _ := matcher.Match(tag)
	return message.NewPrinter(matched, message.Catalog(messages))
}
