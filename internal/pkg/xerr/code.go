package xerr

// 统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode    = 40000 // 无效的请求参数
	ValidationFailedCode = 40001 // 参数验证失败
	WeakPasswordCode     = 40002 // 密码强度不足或在泄露列表中
	AliasTakenCode       = 40003 // 别名已被有效链接占用

	// --- 认证错误系列 (401xx) ---
	UnauthorizedCode = 40100 // 通用未授权 (所有者 JWT)
	TokenInvalidCode = 40101 // Token 无效或过期

	// --- 权限错误系列 (403xx) ---
	ForbiddenCode        = 40300 // 通用无权限
	PermissionDeniedCode = 40301 // 非画廊所有者
	AccessDeniedCode     = 40302 // 访客访问被拒绝 (不区分具体原因)

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode        = 40400 // 通用资源未找到
	GalleryNotFoundCode = 40401 // 画廊不存在
	LinkNotFoundCode    = 40402 // 分享链接不存在

	// --- 业务逻辑冲突系列 (409xx) ---
	ConflictCode        = 40900 // 通用冲突
	LinkStillActiveCode = 40901 // 链接仍然有效，无法删除

	// --- 频率限制 (429xx) ---
	RateLimitedCode = 42900 // 尝试次数过多或 IP 被封禁

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 对象存储操作失败
	StoreUnavailableCode    = 50301 // 存储暂不可用，安全检查按拒绝处理
)
