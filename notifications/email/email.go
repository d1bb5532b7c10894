package email

import (
	"fmt"
	"net/smtp"
)

// smtpServer is a global variable that stores a string that represents the address of the SMTP server which is used to send emails.
var smtpServer string

// auth is a global variable that holds a smtp.Auth struct that stores the authentication data needed to connect to the SMTP server.
// It is initialized by the smtp.PlainAuth function, which takes the username and password of the email sender.
var auth smtp.Auth

// fromEmail is a global variable that stores a string that represents the email address of the sender. This is used as the "From" address in the emails that are sent.
var fromEmail string

// InitEmailService initializes the email fallback delivery channel by
// establishing an SMTP connection to the configured email server.
// It accepts two arguments:
// - sender: A string containing the email address of the sender. This is used as the "From" address in the emails that are sent.
// - password: A string containing the password of the sender's email account.
//
// It sets the SMTP server address and the sender's email address, establishes
// an SMTP connection using smtp.PlainAuth with the sender's email and
// password, and dials the server once to check that the connection works.
//
// If successful in establishing a connection, the function returns true.
// If an error occurs during any step of the process, it returns false and the error.
func InitEmailService(sender, password string) (bool, error) {
	smtpServer = "smtp.gmail.com:587"
	fromEmail = sender

	auth = smtp.PlainAuth(
		"",
		sender,
		password,
		"smtp.gmail.com",
	)

	c, err := smtp.Dial(smtpServer)
	if err != nil {
		return false, fmt.Errorf("cannot connect to the SMTP server: %v", err)
	}

	err = c.Close()
	if err != nil {
		return false, fmt.Errorf("cannot close the SMTP connection: %v", err)
	}

	return true, nil
}

// SendEmail sends a reminder or milestone message to a recipient.
// It accepts three arguments:
// - to: A string containing the email address of the recipient.
// - subject: The subject line, usually the notification title.
// - body: The plain-text message to deliver.
//
// The function returns an error if there was a problem with any step of the process.
func SendEmail(to, subject, body string) error {
	headers := make(map[string]string)
	headers["From"] = fromEmail
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=\"UTF-8\""

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}

	html := `
	<html>
		<body>
			<div style="max-width: 600px; margin: 0 auto; padding: 10px;">
				<h1>` + subject + `</h1>
				<p>` + body + `</p>
			</div>
		</body>
	</html>
	`
	message += "\r\n" + html

	err := smtp.SendMail(
		smtpServer,
		auth,
		fromEmail,
		[]string{to},
		[]byte(message),
	)
	if err != nil {
		return fmt.Errorf("cannot send email: %v", err)
	}

	return nil
}
