package commands

const helpGeneral = "*Perintah Umum:*\n\n" +
	"1. `/register <nomor>` - Daftarkan device agar bisa memakai command.\n" +
	"2. `/salam` - Menampilkan status router saat ini.\n" +
	"3. `/detail <down|up> <prefix>` - Menampilkan daftar user yang down/online dari notifikasi Link XXX terakhir (contoh: `/detail down BRN` atau `/detail up PGK`).\n" +
	"4. `/cmd` - Menampilkan bantuan ini."

const helpAdmin = "*Perintah Admin:*\n\n" +
	"1. `/targets <add|remove|list> [id] [all|link]` - Mengelola target notifikasi:\n" +
	" * `add [id] all`: target menerima semua notifikasi (default).\n" +
	" * `add [id] link`: target hanya menerima notifikasi link down (≥10 user).\n" +
	" * `remove [id]`: menghapus target.\n" +
	" * `list`: daftar target beserta tipenya.\n" +
	"2. `/threshold <min> <max>` - Batas menit downtime minimum dan maksimum yang dipantau.\n" +
	"3. `/blacklist <add|remove|list> [nama]` - Mengelola daftar user yang diabaikan:\n" +
	" * `add [nama]`: menambahkan nama ke blacklist.\n" +
	" * `remove [nama]`: menghapus nama dari blacklist.\n" +
	" * `list`: daftar user yang diabaikan.\n" +
	"4. `/jadwal [jam...]` - Jam laporan monitoring otomatis (contoh: `/jadwal 07:00 15:00`)."

// helpText is the /cmd reply; admins also see the admin section.
func helpText(admin bool) string {
	if !admin {
		return helpGeneral
	}
	return helpGeneral + "\n\n" + helpAdmin
}
